package internal

import (
	"github.com/lychee-technology/breeze"
)

type fixupKey struct {
	typeName string
	key      string
}

// keyFixupMap tracks the temporary keys of one save call. A temporary key is pending from the
// start of the save until the entity owning it has been inserted; afterwards it resolves to the
// real key. Access is sequential, so no locking.
type keyFixupMap struct {
	pending  map[fixupKey]struct{}
	resolved map[fixupKey]any
}

func newKeyFixupMap() *keyFixupMap {
	return &keyFixupMap{
		pending:  make(map[fixupKey]struct{}),
		resolved: make(map[fixupKey]any),
	}
}

// markPending registers a temporary key. It reports false when the key is already pending.
func (m *keyFixupMap) markPending(typeName string, temp any) bool {
	k := fixupKey{typeName: typeName, key: keyString(temp)}
	if _, ok := m.pending[k]; ok {
		return false
	}
	m.pending[k] = struct{}{}
	return true
}

// resolve records the real key of an inserted entity. The first resolution of a pair wins.
func (m *keyFixupMap) resolve(typeName string, temp, real any) {
	k := fixupKey{typeName: typeName, key: keyString(temp)}
	delete(m.pending, k)
	if _, ok := m.resolved[k]; !ok {
		m.resolved[k] = real
	}
}

// lookup returns the real key for a temporary key, and whether the key is still unassigned.
func (m *keyFixupMap) lookup(typeName string, value any) (real any, found bool, pending bool) {
	k := fixupKey{typeName: typeName, key: keyString(value)}
	if real, ok := m.resolved[k]; ok {
		return real, true, false
	}
	_, pending = m.pending[k]
	return nil, false, pending
}

func (m *keyFixupMap) isPending(typeName string, value any) bool {
	_, ok := m.pending[fixupKey{typeName: typeName, key: keyString(value)}]
	return ok
}

// keyStrategy returns the key generation strategy of an entity: the per-entity override wins over
// the type default.
func keyStrategy(info *breeze.EntityInfo) breeze.AutoGeneratedKeyType {
	if info.AutoGeneratedKey != nil && info.AutoGeneratedKey.AutoGeneratedKeyType != "" {
		return info.AutoGeneratedKey.AutoGeneratedKeyType
	}
	if info.EntityType.AutoGeneratedKeyType == "" {
		return breeze.AutoGeneratedKeyNone
	}
	return info.EntityType.AutoGeneratedKeyType
}

// generatedKeyProperty is the key property the strategy applies to: the override's property when
// it names a key, otherwise the first key property.
func generatedKeyProperty(info *breeze.EntityInfo) *breeze.DataProperty {
	if info.AutoGeneratedKey != nil && info.AutoGeneratedKey.PropertyName != "" {
		if p := info.EntityType.Property(info.AutoGeneratedKey.PropertyName); p != nil && p.IsPartOfKey {
			return p
		}
	}
	keys := info.EntityType.KeyProperties()
	if len(keys) == 0 {
		return nil
	}
	return keys[0]
}
