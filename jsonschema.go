package breeze

// JSONSchema is the on-disk definition of one entity type: a JSON Schema document
// carrying the x- extensions that describe keys, storage and relations.
type JSONSchema struct {
	Title                string                     `json:"title"`
	Type                 any                        `json:"type,omitempty"`
	Properties           map[string]*PropertySchema `json:"properties"`
	Required             []string                   `json:"required,omitempty"`
	EntityType           string                     `json:"x-entityType,omitempty"` // falls back to title, then file name
	Namespace            string                     `json:"x-namespace,omitempty"`
	Table                string                     `json:"x-table,omitempty"`
	Key                  []string                   `json:"x-key,omitempty"`
	AutoGeneratedKeyType string                     `json:"x-autoGeneratedKeyType,omitempty"`
	PropertyOrder        []string                   `json:"x-propertyOrder,omitempty"`
}

// PropertySchema defines the schema for a single property.
type PropertySchema struct {
	Type        any             `json:"type,omitempty"` // "string", "integer", ... or ["integer", "null"]
	Format      string          `json:"format,omitempty"`
	Column      string          `json:"x-column,omitempty"`
	DataType    string          `json:"x-dataType,omitempty"`
	Concurrency bool            `json:"x-concurrency,omitempty"`
	Sequence    string          `json:"x-sequence,omitempty"`
	Relation    *RelationSchema `json:"x-relation,omitempty"`
}

// RelationSchema defines reference relationships between entity types.
type RelationSchema struct {
	Target string `json:"target"` // Target entity type name
	Type   string `json:"type"`   // "reference" for foreign key relationships
}

// TypeNames returns the JSON types of the property, normalising the string and array forms.
func (p *PropertySchema) TypeNames() []string {
	switch v := p.Type.(type) {
	case string:
		return []string{v}
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	case []string:
		return v
	}
	return nil
}
