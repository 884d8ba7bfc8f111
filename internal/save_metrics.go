package internal

import (
	"errors"
	"time"

	"github.com/lychee-technology/breeze"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCommitted  = "committed"
	outcomeRejected   = "rejected"
	outcomeRolledBack = "rolled_back"
)

// SaveMetrics exposes prometheus collectors for save calls. A nil *SaveMetrics records nothing.
type SaveMetrics struct {
	saves       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	entities    *prometheus.CounterVec
	keyMappings *prometheus.CounterVec
}

// NewSaveMetrics creates the save collectors and registers them with reg. Collectors that are
// already registered are reused.
func NewSaveMetrics(reg prometheus.Registerer, namespace string) (*SaveMetrics, error) {
	m := &SaveMetrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Save calls by outcome.",
		}, []string{"outcome", "error_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Duration of save calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_entities_total",
			Help:      "Committed entities by entity type and state.",
		}, []string{"entity_type", "state"}),
		keyMappings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_mappings_total",
			Help:      "Temporary keys replaced by server keys.",
		}, []string{"entity_type"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.saves, err = registerCollector(reg, m.saves); err != nil {
		return nil, err
	}
	if m.duration, err = registerCollector(reg, m.duration); err != nil {
		return nil, err
	}
	if m.entities, err = registerCollector(reg, m.entities); err != nil {
		return nil, err
	}
	if m.keyMappings, err = registerCollector(reg, m.keyMappings); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *SaveMetrics) observeSave(result *breeze.SaveResult, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome, errorType := outcomeCommitted, ""
	switch {
	case err != nil:
		outcome = outcomeRolledBack
		var saveErr *breeze.SaveError
		if errors.As(err, &saveErr) {
			errorType = string(saveErr.Type)
		} else {
			errorType = string(breeze.ErrorTypeInternal)
		}
	case result.Failed():
		outcome, errorType = outcomeRejected, string(breeze.ErrorTypeValidation)
	}
	m.saves.WithLabelValues(outcome, errorType).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome != outcomeCommitted || result == nil {
		return
	}
	for _, saved := range result.Entities {
		m.entities.WithLabelValues(saved.EntityTypeName, string(saved.State)).Inc()
	}
	for _, km := range result.KeyMappings {
		m.keyMappings.WithLabelValues(km.EntityTypeName).Inc()
	}
}
