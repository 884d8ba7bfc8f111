package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

// ClassifyEntities resolves the entity type and change-state of every client entity.
// The first entity that cannot be classified aborts the whole bundle.
func ClassifyEntities(metadata breeze.MetadataStore, entities []breeze.Entity) ([]*breeze.EntityInfo, error) {
	if metadata == nil {
		return nil, breeze.NewInternalError("metadata store is not configured", nil)
	}
	infos := make([]*breeze.EntityInfo, 0, len(entities))
	for i, entity := range entities {
		info, err := classifyEntity(metadata, i, entity)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func classifyEntity(metadata breeze.MetadataStore, index int, entity breeze.Entity) (*breeze.EntityInfo, error) {
	if entity == nil {
		return nil, breeze.NewInvalidEntityError(index, fmt.Errorf("entity is nil"))
	}
	aspect, err := entity.Aspect()
	if err != nil {
		return nil, breeze.NewInvalidEntityError(index, err)
	}
	et, err := metadata.EntityType(aspect.EntityTypeName)
	if err != nil {
		return nil, breeze.NewUnknownEntityTypeError(aspect.EntityTypeName, err).WithDetail("index", index)
	}
	state, err := breeze.ParseEntityState(aspect.EntityState)
	if err != nil {
		return nil, breeze.NewInvalidEntityError(index, err)
	}
	if len(et.KeyProperties()) == 0 {
		return nil, breeze.NewSaveError(breeze.ErrorTypeConfiguration, breeze.ErrCodeMissingKeyProperty,
			fmt.Sprintf("entity type %s has no key properties", et.QualifiedName()))
	}

	data := make(breeze.Entity, len(entity))
	for k, v := range entity {
		if k == breeze.EntityAspectField {
			continue
		}
		data[k] = v
	}

	info := &breeze.EntityInfo{
		Entity:            data,
		EntityType:        et,
		State:             state,
		OriginalValuesMap: aspect.OriginalValuesMap,
		ForceUpdate:       aspect.ForceUpdate,
	}
	if agk := aspect.AutoGeneratedKey; agk != nil && agk.AutoGeneratedKeyType != "" {
		keyType, err := breeze.ParseAutoGeneratedKeyType(string(agk.AutoGeneratedKeyType))
		if err != nil {
			return nil, breeze.NewInvalidEntityError(index, err)
		}
		info.AutoGeneratedKey = &breeze.AutoGeneratedKey{PropertyName: agk.PropertyName, AutoGeneratedKeyType: keyType}
	}
	return info, nil
}

// BuildSaveMap groups classified entities by entity type. Entities rejected by include are dropped.
func BuildSaveMap(ctx context.Context, infos []*breeze.EntityInfo, include breeze.BeforeSaveEntityFunc, options breeze.SaveOptions) *breeze.SaveMap {
	saveMap := breeze.NewSaveMap()
	saveMap.SaveOptions = options
	for _, info := range infos {
		if include != nil && !include(ctx, info) {
			zap.S().Debugw("entity excluded from save", "entityType", info.EntityType.QualifiedName(), "state", info.State)
			continue
		}
		saveMap.Add(info)
	}
	return saveMap
}
