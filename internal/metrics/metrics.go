// Package metrics exposes Prometheus counters for the payment operations.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonanatree/visapay/visa/models"
)

const (
	OutcomeOK         = "ok"
	OutcomeNoMatch    = "no_match"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeSequence   = "sequence"
	OutcomeError      = "error"
)

// Recorder counts operation outcomes. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visa",
		Name:      "operations_total",
		Help:      "Card and payment operations by outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(ops)
	return &Recorder{registry: reg, operations: ops}
}

// Observe records one call of operation ending with err.
func (r *Recorder) Observe(operation string, err error) {
	r.ObserveOutcome(operation, Outcome(err))
}

func (r *Recorder) ObserveOutcome(operation, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Outcome classifies an operation error into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, models.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, models.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, models.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, models.ErrSequence):
		return OutcomeSequence
	default:
		return OutcomeError
	}
}
