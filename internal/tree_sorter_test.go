package internal

import (
	"testing"

	"github.com/lychee-technology/breeze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func employeeType() *breeze.EntityType {
	return &breeze.EntityType{
		Name: "Employee",
		DataProperties: []*breeze.DataProperty{
			{Name: "id", DataType: breeze.DataTypeInt64, IsPartOfKey: true},
			{Name: "managerId", DataType: breeze.DataTypeInt64, IsNullable: true, RelatedEntityTypeName: "Employee"},
		},
	}
}

func employees(et *breeze.EntityType, pairs ...[2]any) []*breeze.EntityInfo {
	infos := make([]*breeze.EntityInfo, 0, len(pairs))
	for _, p := range pairs {
		infos = append(infos, &breeze.EntityInfo{
			Entity:     breeze.Entity{"id": p[0], "managerId": p[1]},
			EntityType: et,
			State:      breeze.EntityStateAdded,
		})
	}
	return infos
}

func ids(infos []*breeze.EntityInfo) []any {
	out := make([]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Entity["id"])
	}
	return out
}

func TestSortSelfReferencing_ParentsFirst(t *testing.T) {
	et := employeeType()
	infos := employees(et,
		[2]any{float64(3), float64(2)},
		[2]any{float64(2), float64(1)},
		[2]any{float64(1), nil},
		[2]any{float64(4), float64(99)},
	)
	sorted, err := SortSelfReferencing(et, infos)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3), float64(4)}, ids(sorted))
}

func TestSortSelfReferencing_MatchesKeysAcrossNumericTypes(t *testing.T) {
	et := employeeType()
	infos := employees(et,
		[2]any{float64(2), int64(1)},
		[2]any{int64(1), nil},
	)
	sorted, err := SortSelfReferencing(et, infos)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), float64(2)}, ids(sorted))
}

func TestSortSelfReferencing_NoEdgesKeepsInput(t *testing.T) {
	et := employeeType()
	infos := employees(et, [2]any{float64(2), float64(50)}, [2]any{float64(1), nil})
	sorted, err := SortSelfReferencing(et, infos)
	require.NoError(t, err)
	assert.Equal(t, infos, sorted)
}

func TestSortSelfReferencing_NoSelfReferenceKeepsInput(t *testing.T) {
	et := customerType()
	infos := []*breeze.EntityInfo{
		{Entity: breeze.Entity{"id": float64(2)}, EntityType: et},
		{Entity: breeze.Entity{"id": float64(1)}, EntityType: et},
	}
	sorted, err := SortSelfReferencing(et, infos)
	require.NoError(t, err)
	assert.Equal(t, infos, sorted)
}

func TestSortSelfReferencing_CycleFails(t *testing.T) {
	et := employeeType()
	infos := employees(et, [2]any{float64(1), float64(2)}, [2]any{float64(2), float64(1)})
	_, err := SortSelfReferencing(et, infos)
	assert.True(t, breeze.IsSaveErrorType(err, breeze.ErrorTypeConfiguration))
}
