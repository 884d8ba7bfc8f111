package main

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/breeze"
)

// FieldMapping maps one CSV column onto one data property.
type FieldMapping struct {
	CSVColumn string
	Property  *breeze.DataProperty
	Mapper    FieldMapper
	Required  bool
}

// CSVToEntityMapper turns CSV records into entity payloads of one entity type.
type CSVToEntityMapper interface {
	EntityType() *breeze.EntityType
	Mappings() []FieldMapping
	MapRecord(csvRecord map[string]string) (map[string]any, error)
}

// MapperBuilder provides a fluent API for building mappers by hand.
type MapperBuilder struct {
	entityType *breeze.EntityType
	mappings   []FieldMapping
	err        error
}

func NewMapperBuilder(et *breeze.EntityType) *MapperBuilder {
	return &MapperBuilder{entityType: et}
}

// Map maps csvColumn onto property using the mapper of the property's data type.
func (b *MapperBuilder) Map(csvColumn, property string) *MapperBuilder {
	return b.add(csvColumn, property, nil, false)
}

// MapWith maps csvColumn onto property through mapper.
func (b *MapperBuilder) MapWith(csvColumn, property string, mapper FieldMapper) *MapperBuilder {
	return b.add(csvColumn, property, mapper, false)
}

// Required is Map for a column that must not be empty.
func (b *MapperBuilder) Required(csvColumn, property string) *MapperBuilder {
	return b.add(csvColumn, property, nil, true)
}

func (b *MapperBuilder) add(csvColumn, property string, mapper FieldMapper, required bool) *MapperBuilder {
	prop := b.entityType.Property(property)
	if prop == nil {
		if b.err == nil {
			b.err = fmt.Errorf("entity type %s has no property %q", b.entityType.QualifiedName(), property)
		}
		return b
	}
	if mapper == nil {
		mapper = mapperFor(prop)
	}
	b.mappings = append(b.mappings, FieldMapping{CSVColumn: csvColumn, Property: prop, Mapper: mapper, Required: required})
	return b
}

func (b *MapperBuilder) Build() (CSVToEntityMapper, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &entityMapper{entityType: b.entityType, mappings: b.mappings}, nil
}

// HeaderMapper matches CSV columns to properties by property name or column name, ignoring case.
// Non-nullable properties are required, except auto generated keys.
func HeaderMapper(et *breeze.EntityType, header []string) (CSVToEntityMapper, error) {
	b := NewMapperBuilder(et)
	for _, col := range header {
		prop := matchProperty(et, col)
		if prop == nil {
			return nil, fmt.Errorf("column %q does not match any property of %s", col, et.QualifiedName())
		}
		required := !prop.IsNullable && !(prop.IsPartOfKey && generatesKeys(et))
		b.add(col, prop.Name, nil, required)
	}
	return b.Build()
}

func generatesKeys(et *breeze.EntityType) bool {
	return et.AutoGeneratedKeyType == breeze.AutoGeneratedKeyIdentity ||
		et.AutoGeneratedKeyType == breeze.AutoGeneratedKeyKeyGenerator
}

func matchProperty(et *breeze.EntityType, column string) *breeze.DataProperty {
	name := strings.TrimSpace(column)
	for _, p := range et.DataProperties {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Column(), name) {
			return p
		}
	}
	return nil
}

type entityMapper struct {
	entityType *breeze.EntityType
	mappings   []FieldMapping
}

func (m *entityMapper) EntityType() *breeze.EntityType {
	return m.entityType
}

func (m *entityMapper) Mappings() []FieldMapping {
	return m.mappings
}

func (m *entityMapper) MapRecord(csvRecord map[string]string) (map[string]any, error) {
	result := make(map[string]any, len(m.mappings))
	for _, mapping := range m.mappings {
		csvValue, exists := csvRecord[mapping.CSVColumn]
		if !exists || strings.TrimSpace(csvValue) == "" {
			if mapping.Required {
				return nil, &MappingError{
					CSVColumn: mapping.CSVColumn,
					Property:  mapping.Property.Name,
					RawValue:  csvValue,
					Reason:    "required field is empty",
				}
			}
			continue
		}

		value, err := mapping.Mapper.Map(csvValue)
		if err != nil {
			return nil, &MappingError{
				CSVColumn: mapping.CSVColumn,
				Property:  mapping.Property.Name,
				RawValue:  csvValue,
				Reason:    err.Error(),
			}
		}
		result[mapping.Property.Name] = value
	}
	return result, nil
}

// MappingError reports a CSV cell that could not be mapped.
type MappingError struct {
	CSVColumn string
	Property  string
	RawValue  string
	Reason    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("column %q -> property %q: value %q - %s",
		e.CSVColumn, e.Property, e.RawValue, e.Reason)
}
