package breeze

import (
	"context"
)

// SaveManager persists save bundles atomically.
type SaveManager interface {
	SaveChanges(ctx context.Context, bundle *SaveBundle, opts ...SaveOption) (*SaveResult, error)
}

// RowStore opens transactions against the relational store.
type RowStore interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is one open store transaction. Values and where maps are keyed by property name.
type Tx interface {
	// Insert writes one row and returns it as stored, including store-assigned keys.
	Insert(ctx context.Context, et *EntityType, values map[string]any) (map[string]any, error)
	// Update applies set to the rows matching where and returns the affected row count.
	Update(ctx context.Context, et *EntityType, set, where map[string]any) (int64, error)
	// Delete removes at most limit rows matching where. A limit <= 0 removes every match.
	Delete(ctx context.Context, et *EntityType, where map[string]any, limit int) error
	// Exec runs a raw statement inside the transaction.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// KeyGenerator hands out server keys for entity types using the KeyGenerator strategy.
type KeyGenerator interface {
	NextID(ctx context.Context, et *EntityType, prop *DataProperty) (any, error)
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func(ctx context.Context, et *EntityType, prop *DataProperty) (any, error)

func (f KeyGeneratorFunc) NextID(ctx context.Context, et *EntityType, prop *DataProperty) (any, error) {
	return f(ctx, et, prop)
}

// BeforeSaveEntityFunc decides whether an entity takes part in the save. Rejected entities are dropped silently.
type BeforeSaveEntityFunc func(ctx context.Context, info *EntityInfo) bool

// BeforeSaveEntitiesFunc may inspect or rewrite the save map inside the save transaction.
// Entity errors added to the returned map abort the save and are reported to the caller.
type BeforeSaveEntitiesFunc func(ctx context.Context, saveMap *SaveMap, tx Tx) (*SaveMap, error)

// SaveSettings holds the per-call save hooks.
type SaveSettings struct {
	BeforeSaveEntity   BeforeSaveEntityFunc
	BeforeSaveEntities BeforeSaveEntitiesFunc
	KeyGenerator       KeyGenerator
}

// SaveOption customises one SaveChanges call.
type SaveOption func(*SaveSettings)

// WithBeforeSaveEntity installs a per-entity inclusion predicate.
func WithBeforeSaveEntity(fn BeforeSaveEntityFunc) SaveOption {
	return func(s *SaveSettings) { s.BeforeSaveEntity = fn }
}

// WithBeforeSaveEntities installs a save map hook. Multiple hooks run in the order given.
func WithBeforeSaveEntities(fn BeforeSaveEntitiesFunc) SaveOption {
	return func(s *SaveSettings) {
		if s.BeforeSaveEntities == nil || fn == nil {
			s.BeforeSaveEntities = fn
			return
		}
		prev := s.BeforeSaveEntities
		s.BeforeSaveEntities = func(ctx context.Context, saveMap *SaveMap, tx Tx) (*SaveMap, error) {
			next, err := prev(ctx, saveMap, tx)
			if err != nil {
				return nil, err
			}
			if next == nil {
				next = saveMap
			}
			if next.HasErrors() {
				return next, nil
			}
			return fn(ctx, next, tx)
		}
	}
}

// WithKeyGenerator overrides the key generator for one call.
func WithKeyGenerator(gen KeyGenerator) SaveOption {
	return func(s *SaveSettings) { s.KeyGenerator = gen }
}
