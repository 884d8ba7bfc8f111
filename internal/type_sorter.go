package internal

import (
	"github.com/lychee-technology/breeze"
)

const (
	visitNone = iota
	visitActive
	visitDone
)

// SortEntityTypes orders entity types so that every type comes after the types its foreign keys
// reference. Unrelated types keep their input order. Foreign keys to types outside the input and
// self references are ignored; a cycle between different types is reported as an error.
func SortEntityTypes(types []*breeze.EntityType) ([]*breeze.EntityType, error) {
	if len(types) < 2 {
		return types, nil
	}

	deps := make([][]int, len(types))
	for i, et := range types {
		for _, fk := range et.ForeignKeyProperties() {
			for j, target := range types {
				if j == i || !breeze.SameEntityTypeName(fk.RelatedEntityTypeName, target) {
					continue
				}
				deps[i] = append(deps[i], j)
			}
		}
	}

	order, cycle := dependencyOrder(len(types), deps)
	if cycle != nil {
		path := make([]string, 0, len(cycle))
		for _, idx := range cycle {
			path = append(path, types[idx].QualifiedName())
		}
		return nil, breeze.NewDependencyCycleError(path)
	}

	sorted := make([]*breeze.EntityType, 0, len(types))
	for _, idx := range order {
		sorted = append(sorted, types[idx])
	}
	return sorted, nil
}

// dependencyOrder is a depth first topological sort over n nodes where deps[i] lists the nodes i
// depends on. Dependencies are emitted before their dependents; roots are visited in index order,
// so the result is stable for nodes without a relationship. On a cycle it returns the cycle path.
func dependencyOrder(n int, deps [][]int) ([]int, []int) {
	state := make([]int, n)
	order := make([]int, 0, n)
	var stack []int
	var cycle []int

	var visit func(int) bool
	visit = func(i int) bool {
		switch state[i] {
		case visitDone:
			return true
		case visitActive:
			for pos, idx := range stack {
				if idx == i {
					cycle = append(append([]int{}, stack[pos:]...), i)
					break
				}
			}
			return false
		}
		state[i] = visitActive
		stack = append(stack, i)
		for _, d := range deps[i] {
			if !visit(d) {
				return false
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = visitDone
		order = append(order, i)
		return true
	}

	for i := 0; i < n; i++ {
		if !visit(i) {
			return nil, cycle
		}
	}
	return order, nil
}
