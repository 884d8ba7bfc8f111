package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/breeze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidationHook(t *testing.T) {
	store, err := NewFileMetadataStore(testMetadataDir)
	require.NoError(t, err)

	tx := newFakeTx()
	manager := NewSaveManager(&fakeRowStore{tx: tx}, store, nil, nil, nil,
		breeze.WithBeforeSaveEntities(NewSchemaValidationHook(store)))

	result, err := manager.SaveChanges(context.Background(), &breeze.SaveBundle{Entities: []breeze.Entity{
		entity("Customer", breeze.EntityStateAdded, map[string]any{"id": float64(-1), "name": ""}),
		entity("Customer", breeze.EntityStateDeleted, map[string]any{"id": float64(3)}),
	}})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Customer:#Sales", result.Errors[0].EntityTypeName)
	assert.Equal(t, breeze.ErrCodeValidationError, result.Errors[0].ErrorName)
	assert.Equal(t, []any{float64(-1)}, result.Errors[0].KeyValues)
	assert.Empty(t, tx.ops)
}

func TestSchemaValidationHook_ValidPayloadsAreSaved(t *testing.T) {
	store, err := NewFileMetadataStore(testMetadataDir)
	require.NoError(t, err)

	tx := newFakeTx()
	manager := NewSaveManager(&fakeRowStore{tx: tx}, store, nil, sequenceKeys(0), nil,
		breeze.WithBeforeSaveEntities(NewSchemaValidationHook(store)))

	result, err := manager.SaveChanges(context.Background(), &breeze.SaveBundle{Entities: []breeze.Entity{
		entity("Customer", breeze.EntityStateAdded, map[string]any{"id": float64(-1), "name": "Ada", "createdAt": "2024-05-01T08:00:00Z"}),
		entity("Order", breeze.EntityStateAdded, map[string]any{"id": float64(-2), "customerId": float64(-1), "total": 3.5}),
	}})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, []string{"insert Customer", "insert Order"}, tx.kinds())
	assert.Equal(t, int64(101), tx.ops[1].values["customerId"])
}
