package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/searchkit/searchkit/pkg/errors"
)

func TestMetrics_RecordAttempt(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordAttempt("search", true)
	m.RecordAttempt("search", true)
	m.RecordAttempt("search", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CallAttemptsTotal.WithLabelValues("search", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CallAttemptsTotal.WithLabelValues("search", "false")))
}

func TestMetrics_RecordOutcome(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordOutcome("search", "", true, 1)
	m.RecordOutcome("search", errors.KindRateLimit, false, 4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CallOutcomesTotal.WithLabelValues("search", "success", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CallOutcomesTotal.WithLabelValues("search", "failure", "rate_limit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("rate_limit")))
}

func TestMetrics_RecordBatch(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordBatch("hotels", true, 1000)
	m.RecordBatch("hotels", false, 250)

	assert.Equal(t, float64(1000), testutil.ToFloat64(m.DocumentsUploaded.WithLabelValues("hotels", "succeeded")))
	assert.Equal(t, float64(250), testutil.ToFloat64(m.DocumentsUploaded.WithLabelValues("hotels", "failed")))
}

func TestMetrics_DisabledIsNoOp(t *testing.T) {
	m := NewMetrics(&Config{Enabled: false})

	// Must not panic with nil collectors
	m.RecordAttempt("search", true)
	m.RecordOutcome("search", errors.KindAuth, false, 1)
	m.RecordCheck("configuration", true, 0.1)
	m.RecordBatch("hotels", true, 10)
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordCheck("configuration", true, 0.05)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "searchkit_checks_total")
	assert.Contains(t, w.Body.String(), "searchkit_check_duration_seconds")
}
