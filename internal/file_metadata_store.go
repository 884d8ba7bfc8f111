package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

// FileMetadataStore is a MetadataStore that loads one JSON schema per entity type from a directory.
// Each schema is resolved with jsonschema-go on load so that broken documents fail fast and the
// resolved form can be reused to validate payloads.
type FileMetadataStore struct {
	mu       sync.RWMutex
	dir      string
	byName   map[string]*breeze.EntityType
	types    []*breeze.EntityType
	resolved map[string]*jsonschema.Resolved
}

// NewFileMetadataStore loads every *.json file of schemaDir.
func NewFileMetadataStore(schemaDir string) (*FileMetadataStore, error) {
	store := &FileMetadataStore{
		dir:      schemaDir,
		byName:   make(map[string]*breeze.EntityType),
		resolved: make(map[string]*jsonschema.Resolved),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileMetadataStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := s.loadSchemaFile(filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}

	if len(s.types) == 0 {
		return fmt.Errorf("no entity types found in %s", s.dir)
	}

	sort.Slice(s.types, func(i, j int) bool { return s.types[i].Name < s.types[j].Name })
	if err := s.checkRelations(); err != nil {
		return err
	}
	zap.S().Debugw("metadata loaded", "dir", s.dir, "entityTypes", len(s.types))
	return nil
}

func (s *FileMetadataStore) loadSchemaFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", path, err)
	}

	var doc breeze.JSONSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse schema %s: %w", path, err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("parse json schema %s: %w", path, err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("resolve json schema %s: %w", path, err)
	}

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	et, err := entityTypeFromSchema(&doc, fallback)
	if err != nil {
		return fmt.Errorf("schema %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[et.QualifiedName()]; exists {
		return fmt.Errorf("schema %s: duplicate entity type %s", path, et.QualifiedName())
	}
	s.byName[et.QualifiedName()] = et
	s.types = append(s.types, et)
	s.resolved[et.QualifiedName()] = resolved
	return nil
}

// entityTypeFromSchema converts one schema document into an EntityType.
func entityTypeFromSchema(doc *breeze.JSONSchema, fallbackName string) (*breeze.EntityType, error) {
	name := firstNonEmpty(doc.EntityType, doc.Title, fallbackName)
	keyType, err := breeze.ParseAutoGeneratedKeyType(doc.AutoGeneratedKeyType)
	if err != nil {
		return nil, err
	}
	if len(doc.Key) == 0 {
		return nil, fmt.Errorf("entity type %s declares no x-key", name)
	}

	required := make(map[string]struct{}, len(doc.Required))
	for _, r := range doc.Required {
		required[r] = struct{}{}
	}
	keys := make(map[string]struct{}, len(doc.Key))
	for _, k := range doc.Key {
		if _, ok := doc.Properties[k]; !ok {
			return nil, fmt.Errorf("entity type %s: key %q is not a property", name, k)
		}
		keys[k] = struct{}{}
	}

	et := &breeze.EntityType{
		Name:                 name,
		Namespace:            doc.Namespace,
		TableName:            doc.Table,
		AutoGeneratedKeyType: keyType,
	}
	for _, propName := range propertyOrder(doc) {
		prop := doc.Properties[propName]
		if prop == nil {
			return nil, fmt.Errorf("entity type %s: property %q is not defined", name, propName)
		}
		_, isKey := keys[propName]
		_, isRequired := required[propName]
		dp := &breeze.DataProperty{
			Name:            propName,
			ColumnName:      prop.Column,
			DataType:        dataTypeOf(prop),
			IsNullable:      !isKey && (!isRequired || slices.Contains(prop.TypeNames(), "null")),
			IsPartOfKey:     isKey,
			ConcurrencyMode: breeze.ConcurrencyModeNone,
			SequenceName:    prop.Sequence,
		}
		if prop.Concurrency {
			dp.ConcurrencyMode = breeze.ConcurrencyModeFixed
		}
		if prop.Relation != nil && prop.Relation.Target != "" {
			dp.RelatedEntityTypeName = prop.Relation.Target
		}
		et.DataProperties = append(et.DataProperties, dp)
	}
	return et, nil
}

// propertyOrder lists keys in x-key order, then x-propertyOrder, then the rest alphabetically.
func propertyOrder(doc *breeze.JSONSchema) []string {
	seen := make(map[string]struct{}, len(doc.Properties))
	order := make([]string, 0, len(doc.Properties))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}
	for _, k := range doc.Key {
		add(k)
	}
	for _, p := range doc.PropertyOrder {
		add(p)
	}
	rest := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name)
	}
	return order
}

func dataTypeOf(prop *breeze.PropertySchema) breeze.DataType {
	if prop.DataType != "" {
		return breeze.DataType(prop.DataType)
	}
	for _, t := range prop.TypeNames() {
		switch t {
		case "string":
			switch prop.Format {
			case "uuid":
				return breeze.DataTypeGuid
			case "date-time", "date":
				return breeze.DataTypeDateTime
			case "time":
				return breeze.DataTypeTime
			case "byte", "binary":
				return breeze.DataTypeBinary
			}
			return breeze.DataTypeString
		case "integer":
			switch prop.Format {
			case "int16":
				return breeze.DataTypeInt16
			case "int32":
				return breeze.DataTypeInt32
			}
			return breeze.DataTypeInt64
		case "number":
			switch prop.Format {
			case "decimal":
				return breeze.DataTypeDecimal
			case "float":
				return breeze.DataTypeSingle
			}
			return breeze.DataTypeDouble
		case "boolean":
			return breeze.DataTypeBoolean
		}
	}
	return breeze.DataTypeUndefined
}

func (s *FileMetadataStore) checkRelations() error {
	for _, et := range s.types {
		for _, fk := range et.ForeignKeyProperties() {
			if _, err := s.lookup(fk.RelatedEntityTypeName); err != nil {
				return fmt.Errorf("entity type %s: relation %q targets unknown type %q", et.Name, fk.Name, fk.RelatedEntityTypeName)
			}
		}
	}
	return nil
}

// EntityType resolves a short or qualified entity type name.
func (s *FileMetadataStore) EntityType(name string) (*breeze.EntityType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(name)
}

func (s *FileMetadataStore) lookup(name string) (*breeze.EntityType, error) {
	if et, ok := s.byName[name]; ok {
		return et, nil
	}
	var found *breeze.EntityType
	for _, et := range s.types {
		if breeze.SameEntityTypeName(name, et) {
			if found != nil {
				return nil, fmt.Errorf("entity type name %q is ambiguous", name)
			}
			found = et
		}
	}
	if found == nil {
		return nil, fmt.Errorf("entity type %q not found", name)
	}
	return found, nil
}

// EntityTypes lists all entity types sorted by name.
func (s *FileMetadataStore) EntityTypes() []*breeze.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.types)
}

// ResolvedSchema returns the resolved JSON schema of an entity type.
func (s *FileMetadataStore) ResolvedSchema(et *breeze.EntityType) (*jsonschema.Resolved, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resolved, ok := s.resolved[et.QualifiedName()]
	return resolved, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
