package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountEvaluationsTotal counts evaluations by function handle and decision reason.
	DiscountEvaluationsTotal *prometheus.CounterVec
	// DiscountEvaluationDuration records evaluation latency in milliseconds.
	DiscountEvaluationDuration *prometheus.HistogramVec
	// DiscountCacheTotal counts discount record cache lookups by result.
	DiscountCacheTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_evaluations_total",
			Help:      "Count of discount evaluations by function and reason.",
		}, []string{"function", "reason"})
		DiscountEvaluationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_evaluation_duration_ms",
			Help:      "Latency of discount evaluations in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"function"})
		DiscountCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_cache_total",
			Help:      "Discount record cache lookups by result.",
		}, []string{"result"})
		RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"strategy"})

		mustRegisterCollector(reg, DiscountEvaluationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountEvaluationsTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountEvaluationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				DiscountEvaluationDuration = v
			}
		})
		mustRegisterCollector(reg, DiscountCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountCacheTotal = v
			}
		})
		mustRegisterCollector(reg, RateLimitedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateLimitedTotal = v
			}
		})
	})
}

// ObserveEvaluation records one evaluation. It is a no-op until the domain metrics are registered.
func ObserveEvaluation(function, reason string, elapsed time.Duration) {
	if DiscountEvaluationsTotal != nil {
		DiscountEvaluationsTotal.WithLabelValues(function, reason).Inc()
	}
	if DiscountEvaluationDuration != nil {
		DiscountEvaluationDuration.WithLabelValues(function).Observe(DurationMillis(elapsed))
	}
}

// ObserveCache records a cache lookup result: hit, miss or error.
func ObserveCache(result string) {
	if DiscountCacheTotal != nil {
		DiscountCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRateLimited records a rejected request.
func ObserveRateLimited(strategy string) {
	if RateLimitedTotal != nil {
		RateLimitedTotal.WithLabelValues(strategy).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
