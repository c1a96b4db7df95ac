package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recovery validation outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeIncorrect = "incorrect"
	OutcomeExpired   = "expired"
	OutcomeError     = "error"
)

// RecoveryMetrics counts issued recovery codes and validation outcomes.
type RecoveryMetrics struct {
	Issued      prometheus.Counter
	Validations *prometheus.CounterVec
}

// NewRecoveryMetrics registers the recovery collectors with reg, reusing collectors that
// are already registered.
func NewRecoveryMetrics(reg prometheus.Registerer) (*RecoveryMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	issued := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "usermanager",
		Name:      "recovery_codes_issued_total",
		Help:      "Total number of password recovery codes issued.",
	})
	if err := reg.Register(issued); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register recovery issued collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing issued collector has unexpected type %T", already.ExistingCollector)
		}
		issued = existing
	}

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usermanager",
		Name:      "recovery_validations_total",
		Help:      "Recovery code validations partitioned by outcome.",
	}, []string{"outcome"})
	if err := reg.Register(validations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register recovery validations collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing validations collector has unexpected type %T", already.ExistingCollector)
		}
		validations = existing
	}

	return &RecoveryMetrics{Issued: issued, Validations: validations}, nil
}

// CodeIssued is safe on a nil receiver.
func (m *RecoveryMetrics) CodeIssued() {
	if m == nil {
		return
	}
	m.Issued.Inc()
}

// Validated records one validation outcome. Safe on a nil receiver.
func (m *RecoveryMetrics) Validated(outcome string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome).Inc()
}
