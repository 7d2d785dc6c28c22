package cartsync

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/izahid19/ekart/pkg/errors"
)

// Merge outcome labels.
const (
	mergeNoop         = "noop"
	mergeApplied      = "applied"
	mergeFailed       = "failed"
	mergeUnauthorized = "unauthorized"
)

var (
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_merges_total",
			Help: "Guest cart merge attempts by outcome.",
		},
		[]string{"outcome"},
	)

	mergedLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_merged_lines_total",
			Help: "Guest cart lines accepted by the cart API during merges.",
		},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_cart_operation_duration_seconds",
			Help:    "Duration of cart operations by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(mergesTotal, mergedLinesTotal, operationDuration)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "unavailable"
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
