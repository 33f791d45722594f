package usecase

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/insurance-tariff-service/internal/domain"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tariff_service",
	Name:      "operations_total",
	Help:      "Number of tariff operations by result.",
}, []string{"operation", "result"})

func observe(operation string, err error) {
	var result string
	switch {
	case err == nil:
		result = "ok"
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
