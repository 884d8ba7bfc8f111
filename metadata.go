package breeze

import (
	"fmt"
	"strings"
)

// DataType is the logical type of a data property.
type DataType string

const (
	DataTypeString         DataType = "String"
	DataTypeInt16          DataType = "Int16"
	DataTypeInt32          DataType = "Int32"
	DataTypeInt64          DataType = "Int64"
	DataTypeDecimal        DataType = "Decimal"
	DataTypeDouble         DataType = "Double"
	DataTypeSingle         DataType = "Single"
	DataTypeBoolean        DataType = "Boolean"
	DataTypeDateTime       DataType = "DateTime"
	DataTypeDateTimeOffset DataType = "DateTimeOffset"
	DataTypeTime           DataType = "Time"
	DataTypeGuid           DataType = "Guid"
	DataTypeBinary         DataType = "Binary"
	DataTypeUndefined      DataType = "Undefined"
)

// IsNumeric reports whether values of the type are numbers.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeInt16, DataTypeInt32, DataTypeInt64, DataTypeDecimal, DataTypeDouble, DataTypeSingle:
		return true
	}
	return false
}

// IsDate reports whether values of the type are points in time.
func (d DataType) IsDate() bool {
	return d == DataTypeDateTime || d == DataTypeDateTimeOffset
}

// AutoGeneratedKeyType is the key generation strategy of an entity type.
type AutoGeneratedKeyType string

const (
	AutoGeneratedKeyNone         AutoGeneratedKeyType = "None"
	AutoGeneratedKeyIdentity     AutoGeneratedKeyType = "Identity"
	AutoGeneratedKeyKeyGenerator AutoGeneratedKeyType = "KeyGenerator"
)

// ParseAutoGeneratedKeyType accepts the strategy names case-insensitively; empty means None.
func ParseAutoGeneratedKeyType(raw string) (AutoGeneratedKeyType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return AutoGeneratedKeyNone, nil
	case "identity":
		return AutoGeneratedKeyIdentity, nil
	case "keygenerator":
		return AutoGeneratedKeyKeyGenerator, nil
	default:
		return "", fmt.Errorf("unknown autoGeneratedKeyType %q", raw)
	}
}

// ConcurrencyMode marks properties that take part in optimistic concurrency checks.
type ConcurrencyMode string

const (
	ConcurrencyModeNone  ConcurrencyMode = "None"
	ConcurrencyModeFixed ConcurrencyMode = "Fixed"
)

// DataProperty describes one persisted property of an entity type.
type DataProperty struct {
	Name            string          `json:"name"`
	ColumnName      string          `json:"columnName,omitempty"`
	DataType        DataType        `json:"dataType"`
	IsNullable      bool            `json:"isNullable"`
	IsPartOfKey     bool            `json:"isPartOfKey,omitempty"`
	ConcurrencyMode ConcurrencyMode `json:"concurrencyMode,omitempty"`
	// RelatedEntityTypeName is set on foreign key properties and names the referenced entity type.
	RelatedEntityTypeName string `json:"relatedEntityTypeName,omitempty"`
	// SequenceName overrides the sequence used by the sequence key generator.
	SequenceName string `json:"sequenceName,omitempty"`
}

// Column returns the store column backing the property.
func (p *DataProperty) Column() string {
	if p.ColumnName != "" {
		return p.ColumnName
	}
	return p.Name
}

// IsForeignKey reports whether the property references another entity.
func (p *DataProperty) IsForeignKey() bool {
	return p.RelatedEntityTypeName != ""
}

// EntityType describes one persistable kind of entity. Instances are immutable once published by a MetadataStore.
type EntityType struct {
	Name                 string               `json:"name"`
	Namespace            string               `json:"namespace,omitempty"`
	TableName            string               `json:"tableName,omitempty"`
	AutoGeneratedKeyType AutoGeneratedKeyType `json:"autoGeneratedKeyType,omitempty"`
	DataProperties       []*DataProperty      `json:"dataProperties"`
}

// QualifiedName returns Name:#Namespace, or Name when no namespace is set.
func (t *EntityType) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Name + ":#" + t.Namespace
}

// Table returns the store table backing the entity type.
func (t *EntityType) Table() string {
	if t.TableName != "" {
		return t.TableName
	}
	return t.Name
}

// Property looks up a data property by name.
func (t *EntityType) Property(name string) *DataProperty {
	for _, p := range t.DataProperties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// KeyProperties returns the key properties in declaration order.
func (t *EntityType) KeyProperties() []*DataProperty {
	var keys []*DataProperty
	for _, p := range t.DataProperties {
		if p.IsPartOfKey {
			keys = append(keys, p)
		}
	}
	return keys
}

// ForeignKeyProperties returns every property that references an entity type, including this one.
func (t *EntityType) ForeignKeyProperties() []*DataProperty {
	var fks []*DataProperty
	for _, p := range t.DataProperties {
		if p.IsForeignKey() {
			fks = append(fks, p)
		}
	}
	return fks
}

// SelfReferencingProperties returns the foreign keys that point back at this entity type.
func (t *EntityType) SelfReferencingProperties() []*DataProperty {
	var refs []*DataProperty
	for _, p := range t.ForeignKeyProperties() {
		if SameEntityTypeName(p.RelatedEntityTypeName, t) {
			refs = append(refs, p)
		}
	}
	return refs
}

// ConcurrencyProperties returns the properties used for optimistic concurrency checks.
func (t *EntityType) ConcurrencyProperties() []*DataProperty {
	var props []*DataProperty
	for _, p := range t.DataProperties {
		if p.ConcurrencyMode == ConcurrencyModeFixed {
			props = append(props, p)
		}
	}
	return props
}

// ShortTypeName strips the ":#Namespace" suffix of a qualified entity type name.
func ShortTypeName(name string) string {
	if idx := strings.Index(name, ":#"); idx >= 0 {
		return name[:idx]
	}
	return name
}

// SameEntityTypeName reports whether name, short or qualified, refers to t.
func SameEntityTypeName(name string, t *EntityType) bool {
	if t == nil {
		return false
	}
	if name == t.Name || name == t.QualifiedName() {
		return true
	}
	// a qualified name still matches a type registered without namespace
	return t.Namespace == "" && ShortTypeName(name) == t.Name
}

// MetadataStore resolves entity types by name. Implementations must be safe for concurrent reads.
type MetadataStore interface {
	// EntityType resolves Name or Name:#Namespace.
	EntityType(name string) (*EntityType, error)
	// EntityTypes lists every known entity type, sorted by name.
	EntityTypes() []*EntityType
}
