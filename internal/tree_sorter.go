package internal

import (
	"github.com/lychee-technology/breeze"
)

// SortSelfReferencing orders the entities of a self-referencing entity type so that parents come
// before their children. Entities whose parent is not part of the batch are roots. The input is
// returned unchanged when the type has no self reference or no entity points at another one.
func SortSelfReferencing(et *breeze.EntityType, infos []*breeze.EntityInfo) ([]*breeze.EntityInfo, error) {
	refs := et.SelfReferencingProperties()
	if len(refs) == 0 || len(infos) < 2 {
		return infos, nil
	}
	keys := et.KeyProperties()
	if len(keys) == 0 {
		return infos, nil
	}
	keyName := keys[0].Name

	byKey := make(map[string]int, len(infos))
	for i, info := range infos {
		if v := info.Entity[keyName]; v != nil {
			byKey[keyString(v)] = i
		}
	}

	deps := make([][]int, len(infos))
	edges := 0
	for i, info := range infos {
		for _, ref := range refs {
			parent := info.Entity[ref.Name]
			if parent == nil {
				continue
			}
			if j, ok := byKey[keyString(parent)]; ok && j != i {
				deps[i] = append(deps[i], j)
				edges++
			}
		}
	}
	if edges == 0 {
		return infos, nil
	}

	order, cycle := dependencyOrder(len(infos), deps)
	if cycle != nil {
		path := make([]string, 0, len(cycle))
		for _, idx := range cycle {
			path = append(path, et.Name+"("+keyString(infos[idx].Entity[keyName])+")")
		}
		return nil, breeze.NewDependencyCycleError(path)
	}

	sorted := make([]*breeze.EntityInfo, 0, len(infos))
	for _, idx := range order {
		sorted = append(sorted, infos[idx])
	}
	return sorted, nil
}
