package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/breeze"
)

// saveExecutor persists the entities of one save call inside a single transaction.
type saveExecutor struct {
	tx       breeze.Tx
	metadata breeze.MetadataStore
	keyGen   breeze.KeyGenerator
	fixups   *keyFixupMap

	relatedNames map[string]string
	saved        []breeze.SavedEntity
	keyMappings  []breeze.KeyMapping
}

func newSaveExecutor(tx breeze.Tx, metadata breeze.MetadataStore, keyGen breeze.KeyGenerator) *saveExecutor {
	return &saveExecutor{
		tx:           tx,
		metadata:     metadata,
		keyGen:       keyGen,
		fixups:       newKeyFixupMap(),
		relatedNames: make(map[string]string),
	}
}

// markPendingKeys registers the temporary keys of every Added entity whose key is assigned by the server.
func (e *saveExecutor) markPendingKeys(saveMap *breeze.SaveMap) error {
	for _, name := range saveMap.TypeNames() {
		for _, info := range saveMap.Get(name) {
			if info.State != breeze.EntityStateAdded || keyStrategy(info) == breeze.AutoGeneratedKeyNone {
				continue
			}
			keyProp := generatedKeyProperty(info)
			if keyProp == nil {
				continue
			}
			temp := info.Entity[keyProp.Name]
			if temp == nil {
				continue
			}
			if !e.fixups.markPending(info.EntityType.QualifiedName(), temp) {
				return breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeInvalidEntity,
					fmt.Sprintf("temporary key %v is used by more than one added entity", temp)).
					WithEntity(info).
					WithDetail("property", keyProp.Name)
			}
		}
	}
	return nil
}

func (e *saveExecutor) execute(ctx context.Context, info *breeze.EntityInfo) error {
	var err error
	switch info.State {
	case breeze.EntityStateAdded:
		err = e.add(ctx, info)
	case breeze.EntityStateModified:
		err = e.update(ctx, info)
	case breeze.EntityStateDeleted:
		err = e.delete(ctx, info)
	default:
		err = breeze.NewInternalError(fmt.Sprintf("unsupported entity state %q", info.State), nil)
	}
	if err != nil {
		return decorateError(err, info)
	}
	return nil
}

func (e *saveExecutor) add(ctx context.Context, info *breeze.EntityInfo) error {
	if err := e.prepare(info, true); err != nil {
		return err
	}
	et := info.EntityType
	keyProp := generatedKeyProperty(info)
	if keyProp == nil {
		return breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeMissingKeyProperty,
			fmt.Sprintf("entity type %s has no key properties", et.QualifiedName())).WithEntity(info)
	}
	tempKey := info.Entity[keyProp.Name]
	values := propertyValues(et, info.Entity)

	strategy := keyStrategy(info)
	switch strategy {
	case breeze.AutoGeneratedKeyIdentity:
		if keyProp.DataType == breeze.DataTypeGuid {
			values[keyProp.Name] = uuid.New().String()
		} else {
			delete(values, keyProp.Name)
		}
	case breeze.AutoGeneratedKeyKeyGenerator:
		if e.keyGen == nil {
			return breeze.NewKeyGeneratorMissingError(info)
		}
		id, err := e.keyGen.NextID(ctx, et, keyProp)
		if err != nil {
			var saveErr *breeze.SaveError
			if errors.As(err, &saveErr) {
				return saveErr
			}
			return breeze.NewStoreError(breeze.ErrCodeKeyGenFailed, info, fmt.Errorf("failed to generate key for %s.%s: %w", et.Name, keyProp.Name, err))
		}
		values[keyProp.Name] = id
	}

	row, err := e.tx.Insert(ctx, et, values)
	if err != nil {
		return err
	}
	for k, v := range row {
		values[k] = v
	}

	realKey := values[keyProp.Name]
	if realKey == nil {
		return breeze.NewSaveError(breeze.ErrorTypeStore, breeze.ErrCodeInsertFailed,
			fmt.Sprintf("store did not return a value for key property %q", keyProp.Name)).WithEntity(info)
	}
	if strategy != breeze.AutoGeneratedKeyNone && tempKey != nil {
		e.fixups.resolve(et.QualifiedName(), tempKey, realKey)
		if !sameKey(tempKey, realKey) {
			e.keyMappings = append(e.keyMappings, breeze.KeyMapping{
				EntityTypeName: et.QualifiedName(),
				TempValue:      tempKey,
				RealValue:      realKey,
			})
		}
	}
	for k, v := range values {
		info.Entity[k] = v
	}
	e.record(info, values)
	return nil
}

func (e *saveExecutor) update(ctx context.Context, info *breeze.EntityInfo) error {
	if err := e.prepare(info, true); err != nil {
		return err
	}
	et := info.EntityType
	where, err := keyPredicate(info)
	if err != nil {
		return err
	}
	for _, cp := range et.ConcurrencyProperties() {
		if cp.IsPartOfKey {
			continue
		}
		value := info.Entity[cp.Name]
		if cp.DataType != breeze.DataTypeBinary {
			if original, ok := info.OriginalValuesMap[cp.Name]; ok {
				if value, err = coerceValue(cp, original); err != nil {
					return invalidValueError(info, cp, err)
				}
			}
		}
		where[cp.Name] = value
	}

	set := make(map[string]any)
	if info.ForceUpdate {
		for _, p := range et.DataProperties {
			if p.IsPartOfKey {
				continue
			}
			if v, ok := info.Entity[p.Name]; ok {
				set[p.Name] = v
			}
		}
	} else {
		if info.OriginalValuesMap == nil {
			return breeze.NewOriginalValuesMissingError(info)
		}
		for name := range info.OriginalValuesMap {
			p := et.Property(name)
			if p == nil {
				continue
			}
			if p.IsPartOfKey {
				return breeze.NewKeyMutationError(info, name)
			}
			set[name] = info.Entity[name]
		}
	}

	if len(set) == 0 {
		e.record(info, info.Entity)
		return nil
	}

	affected, err := e.tx.Update(ctx, et, set, where)
	if err != nil {
		return err
	}
	if affected != 1 {
		return breeze.NewConcurrencyError(info, affected)
	}
	e.record(info, info.Entity)
	return nil
}

func (e *saveExecutor) delete(ctx context.Context, info *breeze.EntityInfo) error {
	if err := e.prepare(info, false); err != nil {
		return err
	}
	where, err := keyPredicate(info)
	if err != nil {
		return err
	}
	if err := e.tx.Delete(ctx, info.EntityType, where, 1); err != nil {
		return err
	}
	e.record(info, info.Entity)
	return nil
}

// prepare coerces the raw client values in place and, when fixup is set, rewrites foreign keys
// that reference temporary keys already resolved in this save.
func (e *saveExecutor) prepare(info *breeze.EntityInfo, fixup bool) error {
	et := info.EntityType
	for _, p := range et.DataProperties {
		value, ok := info.Entity[p.Name]
		if !ok || value == nil {
			continue
		}
		if fixup && p.IsForeignKey() {
			target := e.relatedTypeName(p.RelatedEntityTypeName)
			real, found, pending := e.fixups.lookup(target, value)
			switch {
			case found:
				value = real
			case pending:
				return breeze.NewUnresolvedKeyError(info, p.Name, value)
			}
		}
		coerced, err := coerceValue(p, value)
		if err != nil {
			return invalidValueError(info, p, err)
		}
		info.Entity[p.Name] = coerced
	}
	return nil
}

func (e *saveExecutor) relatedTypeName(name string) string {
	if resolved, ok := e.relatedNames[name]; ok {
		return resolved
	}
	resolved := name
	if e.metadata != nil {
		if et, err := e.metadata.EntityType(name); err == nil {
			resolved = et.QualifiedName()
		}
	}
	e.relatedNames[name] = resolved
	return resolved
}

func (e *saveExecutor) record(info *breeze.EntityInfo, values map[string]any) {
	snapshot := make(map[string]any, len(values))
	for k, v := range values {
		snapshot[k] = v
	}
	e.saved = append(e.saved, breeze.SavedEntity{
		EntityTypeName: info.EntityType.QualifiedName(),
		State:          info.State,
		Values:         snapshot,
	})
}

func keyPredicate(info *breeze.EntityInfo) (map[string]any, error) {
	keys := info.EntityType.KeyProperties()
	where := make(map[string]any, len(keys))
	for _, kp := range keys {
		v := info.Entity[kp.Name]
		if v == nil {
			return nil, breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeMissingKeyProperty,
				fmt.Sprintf("key property %q has no value", kp.Name)).
				WithEntity(info).
				WithDetail("property", kp.Name)
		}
		where[kp.Name] = v
	}
	return where, nil
}

// propertyValues keeps the payload fields that map to a data property of the entity type.
func propertyValues(et *breeze.EntityType, entity breeze.Entity) map[string]any {
	values := make(map[string]any, len(entity))
	for _, p := range et.DataProperties {
		if v, ok := entity[p.Name]; ok {
			values[p.Name] = v
		}
	}
	return values
}

func invalidValueError(info *breeze.EntityInfo, p *breeze.DataProperty, cause error) *breeze.SaveError {
	return breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeInvalidEntity,
		fmt.Sprintf("property %q: %v", p.Name, cause)).
		WithEntity(info).
		WithDetail("property", p.Name).
		WithCause(cause)
}

type codedError interface {
	Code() int
}

// decorateError attaches the entity, its change-state and the store diagnostics to a failure.
func decorateError(err error, info *breeze.EntityInfo) error {
	var saveErr *breeze.SaveError
	if errors.As(err, &saveErr) {
		if saveErr.Entity == nil {
			saveErr.WithEntity(info)
		}
		return saveErr
	}

	code := breeze.ErrCodeStoreStatement
	switch info.State {
	case breeze.EntityStateAdded:
		code = breeze.ErrCodeInsertFailed
	case breeze.EntityStateModified:
		code = breeze.ErrCodeUpdateFailed
	case breeze.EntityStateDeleted:
		code = breeze.ErrCodeDeleteFailed
	}
	decorated := breeze.NewStoreError(code, info, err)

	message := err.Error()
	var diagnostics []string
	var stmtErr *breeze.StatementError
	if errors.As(err, &stmtErr) {
		if stmtErr.Err != nil {
			message = stmtErr.Err.Error()
		}
		decorated.WithDetail("statement", stmtErr.Statement)
		diagnostics = append(diagnostics, "statement: "+stmtErr.Statement)
	}
	var pgErr *pgconn.PgError
	var coded codedError
	switch {
	case errors.As(err, &pgErr):
		decorated.WithDetail("storeError", pgErr.Code)
		diagnostics = append([]string{"store error: " + pgErr.Code}, diagnostics...)
		if pgErr.ConstraintName != "" {
			decorated.WithDetail("constraint", pgErr.ConstraintName)
			diagnostics = append(diagnostics, "constraint: "+pgErr.ConstraintName)
		}
	case errors.As(err, &coded):
		decorated.WithDetail("storeError", coded.Code())
		diagnostics = append([]string{fmt.Sprintf("store error: %d", coded.Code())}, diagnostics...)
	}
	if len(diagnostics) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(diagnostics, "; "))
	}
	decorated.Message = message
	return decorated
}
