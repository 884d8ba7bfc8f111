package factory

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// tableCollector is swapped out by tests.
var tableCollector = func(pool queryPool) ([]string, error) {
	return collectTablesFromPool(pool)
}

func collectTablesFromPool(pool queryPool) ([]string, error) {
	rows, err := pool.Query(context.Background(), `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ANY(current_schemas(false)) AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}

// missingTables lists the tables of metadata that are not in tables. Schema qualified table
// names are compared by their last segment.
func missingTables(metadata breeze.MetadataStore, tables []string) []string {
	var missing []string
	for _, et := range metadata.EntityTypes() {
		table := et.Table()
		if idx := strings.LastIndex(table, "."); idx >= 0 {
			table = table[idx+1:]
		}
		if !slices.Contains(tables, table) {
			missing = append(missing, et.Table())
		}
	}
	return missing
}

// NewSaveManagerWithConfig creates a SaveManager persisting through a pgx pool.
// This is the primary way for external projects to create a SaveManager instance.
//
// Entity types are loaded from config.Metadata.SchemaDirectory and every table they name must
// exist. reg may be nil, in which case no metrics are collected.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/breeze"
//	    "github.com/lychee-technology/breeze/factory"
//	)
//
//	config := breeze.DefaultConfig()
//	config.Metadata.SchemaDirectory = "./schemas"
//	sm, err := factory.NewSaveManagerWithConfig(config, pool, prometheus.DefaultRegisterer)
//	if err != nil {
//	    // handle error
//	}
//	result, err := sm.SaveChanges(ctx, bundle)
func NewSaveManagerWithConfig(config *breeze.Config, pool *pgxpool.Pool, reg prometheus.Registerer) (breeze.SaveManager, error) {
	if config == nil {
		config = breeze.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Save.Dialect != breeze.DialectPostgres {
		return nil, fmt.Errorf("pgx save manager requires the postgres dialect, got %s", config.Save.Dialect)
	}

	metadata, err := internal.NewFileMetadataStore(config.Metadata.SchemaDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	tables, err := tableCollector(pool)
	if err != nil {
		return nil, err
	}
	if missing := missingTables(metadata, tables); len(missing) > 0 {
		return nil, fmt.Errorf("required tables are missing in the database: %v", missing)
	}

	var keyGen breeze.KeyGenerator
	if config.KeyGeneration.Enabled {
		keyGen = internal.NewSequenceKeyGenerator(pool, config.KeyGeneration)
	}

	return newSaveManager(config, internal.NewPgxRowStore(pool, config.Save.IsolationLevel), metadata, keyGen, reg)
}

// NewSQLSaveManager creates a SaveManager on top of database/sql, for sqlite databases or Postgres
// through the pgx stdlib driver. No sequence key generator is wired: entity types using the
// KeyGenerator strategy need one passed per call with breeze.WithKeyGenerator.
func NewSQLSaveManager(config *breeze.Config, db *sql.DB, reg prometheus.Registerer) (breeze.SaveManager, error) {
	if config == nil {
		config = breeze.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	metadata, err := internal.NewFileMetadataStore(config.Metadata.SchemaDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	store := internal.NewSQLRowStore(db, config.Save.Dialect, config.Save.IsolationLevel)
	return newSaveManager(config, store, metadata, nil, reg)
}

func newSaveManager(
	config *breeze.Config,
	store breeze.RowStore,
	metadata *internal.FileMetadataStore,
	keyGen breeze.KeyGenerator,
	reg prometheus.Registerer,
) (breeze.SaveManager, error) {
	var metrics *internal.SaveMetrics
	if config.Metrics.Enabled && reg != nil {
		var err error
		metrics, err = internal.NewSaveMetrics(reg, config.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	var opts []breeze.SaveOption
	if config.Save.ValidatePayloads {
		opts = append(opts, breeze.WithBeforeSaveEntities(internal.NewSchemaValidationHook(metadata)))
	}

	zap.S().Infow("save manager created",
		"dialect", config.Save.Dialect,
		"entityTypes", len(metadata.EntityTypes()),
		"keyGenerator", keyGen != nil,
		"validatePayloads", config.Save.ValidatePayloads,
		"metrics", metrics != nil,
	)
	return internal.NewSaveManager(store, metadata, config, keyGen, metrics, opts...), nil
}
