package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lumen", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lumen", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// ReconcileRows counts rows touched by section reconciliation.
	// entity: section|figure, op: created|updated|deleted|duplicate|discarded|failed.
	ReconcileRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lumen", Name: "reconcile_rows_total", Help: "Rows touched by section reconciliation."},
		[]string{"entity", "op"},
	)
	RenderFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "lumen", Name: "markdown_render_fallbacks_total", Help: "Sections stored as escaped text because rendering failed."},
	)
	BlobDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lumen", Name: "blob_deletes_total", Help: "Blob deletions by outcome."},
		[]string{"outcome"},
	)
	ViewCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lumen", Name: "view_cache_requests_total", Help: "Public view cache lookups by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ReconcileRows)
	reg.MustRegister(RenderFallbacks)
	reg.MustRegister(BlobDeletes)
	reg.MustRegister(ViewCache)
}
