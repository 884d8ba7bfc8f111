package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

type sequencePool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SequenceKeyGenerator hands out keys from Postgres sequences. Guid key properties get a fresh
// uuid instead. Each sequence is guarded by its own circuit.
type SequenceKeyGenerator struct {
	pool    sequencePool
	suffix  string
	breaker *sequenceBreaker
}

// NewSequenceKeyGenerator creates a key generator reading sequences through pool.
func NewSequenceKeyGenerator(pool sequencePool, cfg breeze.KeyGenerationConfig) *SequenceKeyGenerator {
	suffix := cfg.SequenceSuffix
	if suffix == "" {
		suffix = "_seq"
	}
	return &SequenceKeyGenerator{
		pool:    pool,
		suffix:  suffix,
		breaker: newSequenceBreaker(cfg.FailureThreshold, cfg.FailureWindow, cfg.OpenDuration),
	}
}

// SequenceName returns the sequence backing a key property: the property's own sequence name
// or <table>_<column><suffix>.
func (g *SequenceKeyGenerator) SequenceName(et *breeze.EntityType, prop *breeze.DataProperty) string {
	if prop.SequenceName != "" {
		return prop.SequenceName
	}
	table := et.Table()
	// a schema qualified table keeps its schema on the sequence
	schema := ""
	if idx := strings.LastIndex(table, "."); idx >= 0 {
		schema, table = table[:idx+1], table[idx+1:]
	}
	return schema + table + "_" + prop.Column() + g.suffix
}

func (g *SequenceKeyGenerator) NextID(ctx context.Context, et *breeze.EntityType, prop *breeze.DataProperty) (any, error) {
	if prop.DataType == breeze.DataTypeGuid {
		return uuid.New().String(), nil
	}
	sequence := g.SequenceName(et, prop)
	if ok, wait := g.breaker.allow(sequence); !ok {
		return nil, breeze.NewSaveError(breeze.ErrorTypeStore, breeze.ErrCodeCircuitOpen,
			"key generation is temporarily unavailable").
			WithDetail("entityType", et.QualifiedName()).
			WithDetail("property", prop.Name).
			WithDetail("sequence", sequence).
			WithDetail("retryAfter", wait.String())
	}

	var id int64
	if err := g.pool.QueryRow(ctx, "SELECT nextval($1::regclass)", sequence).Scan(&id); err != nil {
		g.breaker.failure(sequence)
		zap.S().Warnw("sequence key generation failed", "sequence", sequence, "error", err)
		return nil, fmt.Errorf("nextval(%s): %w", sequence, err)
	}
	g.breaker.success(sequence)
	return id, nil
}
