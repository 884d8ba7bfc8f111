package breeze

import (
	"encoding/json"
	"fmt"
)

// EntityAspectField is the reserved payload field that carries the client-side change tracking state.
const EntityAspectField = "entityAspect"

// EntityState is the change-state declared by the client for one entity.
type EntityState string

const (
	EntityStateAdded    EntityState = "Added"
	EntityStateModified EntityState = "Modified"
	EntityStateDeleted  EntityState = "Deleted"
)

// ParseEntityState validates a raw change-state. Only the three persistable states are accepted.
func ParseEntityState(raw string) (EntityState, error) {
	switch EntityState(raw) {
	case EntityStateAdded, EntityStateModified, EntityStateDeleted:
		return EntityState(raw), nil
	default:
		return "", fmt.Errorf("unsupported entity state %q", raw)
	}
}

// AutoGeneratedKey overrides the key generation strategy of an entity type for a single entity.
type AutoGeneratedKey struct {
	PropertyName         string               `json:"propertyName"`
	AutoGeneratedKeyType AutoGeneratedKeyType `json:"autoGeneratedKeyType"`
}

// EntityAspect is the change tracking envelope attached to every client entity.
type EntityAspect struct {
	EntityTypeName    string            `json:"entityTypeName"`
	EntityState       string            `json:"entityState"`
	OriginalValuesMap map[string]any    `json:"originalValuesMap,omitempty"`
	ForceUpdate       bool              `json:"forceUpdate,omitempty"`
	AutoGeneratedKey  *AutoGeneratedKey `json:"autoGeneratedKey,omitempty"`
}

// Entity is a raw client entity: property name to value, plus the entityAspect envelope.
type Entity map[string]any

// Aspect decodes the entityAspect envelope of the entity.
func (e Entity) Aspect() (*EntityAspect, error) {
	raw, ok := e[EntityAspectField]
	if !ok || raw == nil {
		return nil, fmt.Errorf("entity is missing %q", EntityAspectField)
	}
	switch v := raw.(type) {
	case *EntityAspect:
		return v, nil
	case EntityAspect:
		return &v, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", EntityAspectField, err)
	}
	var aspect EntityAspect
	if err := json.Unmarshal(encoded, &aspect); err != nil {
		return nil, fmt.Errorf("decode %s: %w", EntityAspectField, err)
	}
	return &aspect, nil
}

// SaveOptions are passed through to the save hooks untouched.
type SaveOptions struct {
	Tag any `json:"tag,omitempty"`
}

// SaveBundle is one atomic batch of client changes.
type SaveBundle struct {
	Entities    []Entity    `json:"entities"`
	SaveOptions SaveOptions `json:"saveOptions"`
}

// EntityInfo pairs one entity payload with its resolved type and change-state.
type EntityInfo struct {
	Entity            Entity
	EntityType        *EntityType
	State             EntityState
	OriginalValuesMap map[string]any
	ForceUpdate       bool
	AutoGeneratedKey  *AutoGeneratedKey
}

// KeyValues returns the current key property values in key order.
func (i *EntityInfo) KeyValues() []any {
	if i == nil || i.EntityType == nil {
		return nil
	}
	keys := i.EntityType.KeyProperties()
	values := make([]any, 0, len(keys))
	for _, kp := range keys {
		values = append(values, i.Entity[kp.Name])
	}
	return values
}

// KeyMapping relates a client temporary key to the key assigned by the server.
type KeyMapping struct {
	EntityTypeName string `json:"entityTypeName"`
	TempValue      any    `json:"tempValue"`
	RealValue      any    `json:"realValue"`
}

// SavedEntity is the snapshot of one persisted entity.
type SavedEntity struct {
	EntityTypeName string         `json:"entityTypeName"`
	State          EntityState    `json:"entityState"`
	Values         map[string]any `json:"values"`
}

// EntityError describes why a single entity could not be saved.
type EntityError struct {
	EntityTypeName string `json:"entityTypeName"`
	ErrorName      string `json:"errorName"`
	ErrorMessage   string `json:"errorMessage"`
	PropertyName   string `json:"propertyName,omitempty"`
	KeyValues      []any  `json:"keyValues,omitempty"`
}

// SaveResult is the outcome of a save. Either Entities/KeyMappings or Errors/Message are populated.
type SaveResult struct {
	Entities    []SavedEntity `json:"entities,omitempty"`
	KeyMappings []KeyMapping  `json:"keyMappings,omitempty"`
	Errors      []EntityError `json:"errors,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// Failed reports whether the result carries errors instead of saved entities.
func (r *SaveResult) Failed() bool {
	return r != nil && (len(r.Errors) > 0 || r.Message != "")
}
