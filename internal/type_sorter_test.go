package internal

import (
	"testing"

	"github.com/lychee-technology/breeze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeNames(types []*breeze.EntityType) []string {
	names := make([]string, 0, len(types))
	for _, et := range types {
		names = append(names, et.Name)
	}
	return names
}

func refType(name string, refs ...string) *breeze.EntityType {
	et := &breeze.EntityType{
		Name:           name,
		DataProperties: []*breeze.DataProperty{{Name: "id", DataType: breeze.DataTypeInt64, IsPartOfKey: true}},
	}
	for _, ref := range refs {
		et.DataProperties = append(et.DataProperties, &breeze.DataProperty{
			Name:                  ref + "Id",
			DataType:              breeze.DataTypeInt64,
			RelatedEntityTypeName: ref,
		})
	}
	return et
}

func TestSortEntityTypes_DependenciesFirst(t *testing.T) {
	sorted, err := SortEntityTypes([]*breeze.EntityType{
		refType("OrderLine", "Order", "Product"),
		refType("Order", "Customer"),
		refType("Customer"),
		refType("Product"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Order", "Product", "OrderLine"}, typeNames(sorted))
}

func TestSortEntityTypes_UnrelatedTypesKeepInputOrder(t *testing.T) {
	sorted, err := SortEntityTypes([]*breeze.EntityType{refType("B"), refType("A"), refType("C")})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, typeNames(sorted))
}

func TestSortEntityTypes_IgnoresSelfAndMissingReferences(t *testing.T) {
	sorted, err := SortEntityTypes([]*breeze.EntityType{
		refType("Employee", "Employee", "Department"),
		refType("Invoice", "Ledger"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Employee", "Invoice"}, typeNames(sorted))
}

func TestSortEntityTypes_QualifiedReferences(t *testing.T) {
	order := orderType()
	customer := customerType()
	sorted, err := SortEntityTypes([]*breeze.EntityType{order, customer})
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Order"}, typeNames(sorted))
}

func TestSortEntityTypes_CycleFails(t *testing.T) {
	_, err := SortEntityTypes([]*breeze.EntityType{
		refType("A", "B"),
		refType("B", "C"),
		refType("C", "A"),
	})
	var saveErr *breeze.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, breeze.ErrCodeDependencyCycle, saveErr.Code)
	assert.Equal(t, []string{"A", "B", "C", "A"}, saveErr.Details["cycle"])
}

func TestDependencyOrder(t *testing.T) {
	order, cycle := dependencyOrder(4, [][]int{{1}, {2}, nil, {0}})
	assert.Nil(t, cycle)
	assert.Equal(t, []int{2, 1, 0, 3}, order)

	order, cycle = dependencyOrder(2, [][]int{{1}, {0}})
	assert.Nil(t, order)
	assert.Equal(t, []int{0, 1, 0}, cycle)
}
