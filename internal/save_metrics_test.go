package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lychee-technology/breeze"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveMetrics_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewSaveMetrics(reg, "breeze")
	require.NoError(t, err)

	metrics.observeSave(&breeze.SaveResult{
		Entities: []breeze.SavedEntity{
			{EntityTypeName: "Customer", State: breeze.EntityStateAdded},
			{EntityTypeName: "Customer", State: breeze.EntityStateAdded},
			{EntityTypeName: "Order", State: breeze.EntityStateDeleted},
		},
		KeyMappings: []breeze.KeyMapping{{EntityTypeName: "Customer", TempValue: -1, RealValue: 1}},
	}, nil, 5*time.Millisecond)
	metrics.observeSave(&breeze.SaveResult{Message: "invalid"}, nil, time.Millisecond)
	metrics.observeSave(nil, breeze.NewConcurrencyError(&breeze.EntityInfo{EntityType: customerType(), Entity: breeze.Entity{}}, 0), time.Millisecond)
	metrics.observeSave(nil, errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.saves.WithLabelValues(outcomeCommitted, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.saves.WithLabelValues(outcomeRejected, "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.saves.WithLabelValues(outcomeRolledBack, "concurrency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.saves.WithLabelValues(outcomeRolledBack, "internal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.entities.WithLabelValues("Customer", "Added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entities.WithLabelValues("Order", "Deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.keyMappings.WithLabelValues("Customer")))
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.duration))
}

func TestSaveMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSaveMetrics(reg, "breeze")
	require.NoError(t, err)
	second, err := NewSaveMetrics(reg, "breeze")
	require.NoError(t, err)

	second.observeSave(&breeze.SaveResult{}, nil, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.saves.WithLabelValues(outcomeCommitted, "")))
}

func TestSaveMetrics_NilIsNoop(t *testing.T) {
	var metrics *SaveMetrics
	assert.NotPanics(t, func() { metrics.observeSave(nil, nil, time.Second) })
}

func TestSaveManager_ObservesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewSaveMetrics(reg, "breeze")
	require.NoError(t, err)
	manager := NewSaveManager(&fakeRowStore{tx: newFakeTx()}, testMetadata(), nil, nil, metrics)

	_, err = manager.SaveChanges(context.Background(), &breeze.SaveBundle{Entities: []breeze.Entity{
		entity("Customer", breeze.EntityStateAdded, map[string]any{"id": float64(-1), "name": "Ada"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entities.WithLabelValues("Customer:#Sales", "Added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.keyMappings.WithLabelValues("Customer:#Sales")))
}
