package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("route", "/api/v1/track"),
		attribute.String("beneficiary_id", "456"),
		attribute.String("tier", "bronze"),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("beneficiary_id"), attr.Key)
	}
}

func TestReferralMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReferralMetrics(registry, Config{Service: "referral", Environment: "test"})

	m.ObserveAward("bronze", AwardOutcomeCreated, 60)
	m.ObserveAward("bronze", AwardOutcomeExisting, 60)
	m.ObserveClaim(ClaimModeAll, "claimed", 60, 0)
	m.IncNotificationFailure("webhook")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.awards.WithLabelValues("bronze", AwardOutcomeCreated)))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.awardedMinutes.WithLabelValues("bronze")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.claimedMinutes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("webhook")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *ReferralMetrics
	m.ObserveAward("bronze", AwardOutcomeCreated, 1)
	m.IncRateLimited()

	var s *SchedulerMetrics
	s.ObserveRun("expire_stale", 0, 1, nil)
	s.ObserveSkip("expire_stale")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPMetricsOnNoopProvider(t *testing.T) {
	m, err := NewHTTPMetrics(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(m))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
