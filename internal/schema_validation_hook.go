package internal

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/breeze"
)

type resolvedSchemaSource interface {
	ResolvedSchema(et *breeze.EntityType) (*jsonschema.Resolved, bool)
}

// NewSchemaValidationHook validates Added and Modified payloads against the JSON schema of their
// entity type. Failures are reported through the save map, which rejects the save.
func NewSchemaValidationHook(schemas resolvedSchemaSource) breeze.BeforeSaveEntitiesFunc {
	return func(ctx context.Context, saveMap *breeze.SaveMap, _ breeze.Tx) (*breeze.SaveMap, error) {
		for _, name := range saveMap.TypeNames() {
			et := saveMap.EntityType(name)
			resolved, ok := schemas.ResolvedSchema(et)
			if !ok {
				continue
			}
			for _, info := range saveMap.Get(name) {
				if info.State == breeze.EntityStateDeleted {
					continue
				}
				if err := resolved.Validate(map[string]any(info.Entity)); err != nil {
					saveMap.AddEntityError(breeze.EntityError{
						EntityTypeName: et.QualifiedName(),
						ErrorName:      breeze.ErrCodeValidationError,
						ErrorMessage:   fmt.Sprintf("%s entity failed schema validation: %v", info.State, err),
						KeyValues:      info.KeyValues(),
					})
				}
			}
		}
		return saveMap, nil
	}
}
