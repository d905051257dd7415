package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autogift/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("autogift", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/1/evaluate", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/discounts/{id}/evaluate"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/discounts/{id}/evaluate", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestDomainMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("autogift", registry)

	obs.ObserveEvaluation("auto-gift", "applied", 2*time.Millisecond)
	obs.ObserveEvaluation("auto-gift", "applied", time.Millisecond)
	obs.ObserveCache("hit")
	obs.ObserveRateLimited("sliding")

	require.Equal(t, 2.0, testutil.ToFloat64(obs.DiscountEvaluationsTotal.WithLabelValues("auto-gift", "applied")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.DiscountCacheTotal.WithLabelValues("hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.RateLimitedTotal.WithLabelValues("sliding")))
}
