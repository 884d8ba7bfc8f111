package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

const defaultValidationMessage = "the save was rejected by validation"

type saveManager struct {
	store    breeze.RowStore
	metadata breeze.MetadataStore
	config   *breeze.Config
	keyGen   breeze.KeyGenerator
	metrics  *SaveMetrics
	defaults []breeze.SaveOption
}

// NewSaveManager creates a SaveManager persisting bundles through store. keyGen and metrics may
// be nil; opts apply to every call before the per-call options.
func NewSaveManager(
	store breeze.RowStore,
	metadata breeze.MetadataStore,
	config *breeze.Config,
	keyGen breeze.KeyGenerator,
	metrics *SaveMetrics,
	opts ...breeze.SaveOption,
) breeze.SaveManager {
	if config == nil {
		config = breeze.DefaultConfig()
	}
	return &saveManager{
		store:    store,
		metadata: metadata,
		config:   config,
		keyGen:   keyGen,
		metrics:  metrics,
		defaults: opts,
	}
}

func (m *saveManager) SaveChanges(ctx context.Context, bundle *breeze.SaveBundle, opts ...breeze.SaveOption) (result *breeze.SaveResult, err error) {
	start := time.Now()
	defer func() {
		m.metrics.observeSave(result, err, time.Since(start))
	}()

	if bundle == nil {
		return nil, breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeInvalidEntity, "save bundle cannot be nil")
	}
	if m.store == nil {
		return nil, breeze.NewInternalError("row store is not configured", nil)
	}
	if limit := m.config.Save.MaxEntities; limit > 0 && len(bundle.Entities) > limit {
		return nil, breeze.NewBundleTooLargeError(len(bundle.Entities), limit)
	}

	settings := &breeze.SaveSettings{KeyGenerator: m.keyGen}
	for _, opt := range m.defaults {
		opt(settings)
	}
	for _, opt := range opts {
		opt(settings)
	}

	if m.config.Save.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Save.Timeout)
		defer cancel()
	}

	infos, err := ClassifyEntities(m.metadata, bundle.Entities)
	if err != nil {
		return nil, err
	}
	saveMap := BuildSaveMap(ctx, infos, settings.BeforeSaveEntity, bundle.SaveOptions)
	zap.S().Debugw("saving bundle", "entities", saveMap.Len(), "types", saveMap.TypeNames())

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return nil, breeze.NewTransactionError("failed to begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, tx)
		}
	}()

	if settings.BeforeSaveEntities != nil {
		next, err := settings.BeforeSaveEntities(ctx, saveMap, tx)
		if err != nil {
			var saveErr *breeze.SaveError
			if errors.As(err, &saveErr) {
				return nil, saveErr
			}
			return nil, breeze.NewInternalError("before save entities hook failed", err)
		}
		if next != nil {
			saveMap = next
		}
	}
	if saveMap.HasErrors() {
		zap.S().Infow("save rejected by validation", "errors", len(saveMap.EntityErrors), "message", saveMap.ErrorMessage)
		return validationResult(saveMap), nil
	}

	result, err = m.persist(ctx, tx, saveMap, settings.KeyGenerator)
	if err != nil {
		zap.S().Warnw("save failed, rolling back", "error", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, breeze.NewTransactionError("failed to commit transaction", err)
	}
	committed = true
	zap.S().Debugw("save committed", "entities", len(result.Entities), "keyMappings", len(result.KeyMappings))
	return result, nil
}

// persist runs pass 1 (Added and Modified, dependencies first) and pass 2 (Deleted, dependents
// first) over the dependency ordered groups.
func (m *saveManager) persist(ctx context.Context, tx breeze.Tx, saveMap *breeze.SaveMap, keyGen breeze.KeyGenerator) (*breeze.SaveResult, error) {
	types := make([]*breeze.EntityType, 0, len(saveMap.TypeNames()))
	for _, et := range saveMap.EntityTypes() {
		if et == nil {
			return nil, breeze.NewInternalError("save map contains a group without entity type", nil)
		}
		types = append(types, et)
	}
	sorted, err := SortEntityTypes(types)
	if err != nil {
		return nil, err
	}

	groups := make([][]*breeze.EntityInfo, len(sorted))
	for i, et := range sorted {
		group, err := SortSelfReferencing(et, saveMap.Get(et.QualifiedName()))
		if err != nil {
			return nil, err
		}
		groups[i] = group
	}

	exec := newSaveExecutor(tx, m.metadata, keyGen)
	if err := exec.markPendingKeys(saveMap); err != nil {
		return nil, err
	}

	for _, group := range groups {
		for _, info := range group {
			if info.State == breeze.EntityStateDeleted {
				continue
			}
			if err := exec.execute(ctx, info); err != nil {
				return nil, err
			}
		}
	}
	for i := len(groups) - 1; i >= 0; i-- {
		group := groups[i]
		for j := len(group) - 1; j >= 0; j-- {
			if group[j].State != breeze.EntityStateDeleted {
				continue
			}
			if err := exec.execute(ctx, group[j]); err != nil {
				return nil, err
			}
		}
	}

	return &breeze.SaveResult{
		Entities:    exec.saved,
		KeyMappings: exec.keyMappings,
	}, nil
}

func validationResult(saveMap *breeze.SaveMap) *breeze.SaveResult {
	message := saveMap.ErrorMessage
	if message == "" {
		message = defaultValidationMessage
		if n := len(saveMap.EntityErrors); n > 0 {
			message = fmt.Sprintf("%s: %d entity error(s)", defaultValidationMessage, n)
		}
	}
	return &breeze.SaveResult{
		Errors:  saveMap.EntityErrors,
		Message: message,
	}
}

// rollback runs even when ctx is already cancelled or past its deadline.
func rollback(ctx context.Context, tx breeze.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		zap.S().Warnw("failed to rollback save transaction", "error", err)
	}
}
