package breeze

import (
	"slices"
)

// SaveMap groups the entities of one save by entity type. Group order is the order in which
// types were first added, so unrelated types keep the order of the incoming bundle.
type SaveMap struct {
	order  []string
	types  map[string]*EntityType
	groups map[string][]*EntityInfo

	SaveOptions  SaveOptions
	EntityErrors []EntityError
	ErrorMessage string
}

// NewSaveMap creates an empty save map.
func NewSaveMap() *SaveMap {
	return &SaveMap{
		types:  make(map[string]*EntityType),
		groups: make(map[string][]*EntityInfo),
	}
}

// Add appends an entity to the group of its entity type.
func (m *SaveMap) Add(info *EntityInfo) {
	name := info.EntityType.QualifiedName()
	if _, ok := m.groups[name]; !ok {
		m.order = append(m.order, name)
		m.types[name] = info.EntityType
	}
	m.groups[name] = append(m.groups[name], info)
}

// Get returns the entities of one entity type.
func (m *SaveMap) Get(typeName string) []*EntityInfo {
	return m.groups[m.resolve(typeName)]
}

// EntityType returns the entity type registered for a group.
func (m *SaveMap) EntityType(typeName string) *EntityType {
	return m.types[m.resolve(typeName)]
}

// Replace swaps the entities of one group. An empty list removes the group.
func (m *SaveMap) Replace(typeName string, infos []*EntityInfo) {
	name := m.resolve(typeName)
	if len(infos) == 0 {
		m.RemoveType(name)
		return
	}
	if _, ok := m.groups[name]; !ok {
		name = infos[0].EntityType.QualifiedName()
		if _, ok := m.groups[name]; !ok {
			m.order = append(m.order, name)
			m.types[name] = infos[0].EntityType
		}
	}
	m.groups[name] = infos
}

// Remove drops a single entity from its group.
func (m *SaveMap) Remove(info *EntityInfo) bool {
	name := info.EntityType.QualifiedName()
	group := m.groups[name]
	idx := slices.Index(group, info)
	if idx < 0 {
		return false
	}
	m.Replace(name, slices.Delete(slices.Clone(group), idx, idx+1))
	return true
}

// RemoveType drops a whole group.
func (m *SaveMap) RemoveType(typeName string) {
	name := m.resolve(typeName)
	if _, ok := m.groups[name]; !ok {
		return
	}
	delete(m.groups, name)
	delete(m.types, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
}

// TypeNames returns the group names in insertion order.
func (m *SaveMap) TypeNames() []string {
	return slices.Clone(m.order)
}

// EntityTypes returns the group entity types in insertion order.
func (m *SaveMap) EntityTypes() []*EntityType {
	types := make([]*EntityType, 0, len(m.order))
	for _, name := range m.order {
		types = append(types, m.types[name])
	}
	return types
}

// Len returns the number of entities across all groups.
func (m *SaveMap) Len() int {
	n := 0
	for _, group := range m.groups {
		n += len(group)
	}
	return n
}

// AddEntityError records a validation error. Any recorded error aborts the save.
func (m *SaveMap) AddEntityError(err EntityError) {
	m.EntityErrors = append(m.EntityErrors, err)
}

// HasErrors reports whether the save must be short-circuited.
func (m *SaveMap) HasErrors() bool {
	return len(m.EntityErrors) > 0 || m.ErrorMessage != ""
}

// resolve maps a short type name onto the qualified group name when unambiguous.
func (m *SaveMap) resolve(typeName string) string {
	if _, ok := m.groups[typeName]; ok {
		return typeName
	}
	for _, name := range m.order {
		if SameEntityTypeName(typeName, m.types[name]) {
			return name
		}
	}
	return typeName
}
