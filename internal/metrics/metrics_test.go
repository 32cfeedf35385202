package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"neurosphere-backend/internal/metrics"
)

func TestMetrics_Lifecycle(t *testing.T) {
	m := metrics.New()

	m.ScanStarted()
	m.StageTransition("uploading")
	m.StageTransition("uploading")
	m.ScanFinished("completed", 2*time.Second)
	m.VisualizationFinished("failed")
	m.SetQueueDepth(3)

	expected := `
# HELP neurosphere_stage_transitions_total Number of persisted stage transitions, partitioned by stage.
# TYPE neurosphere_stage_transitions_total counter
neurosphere_stage_transitions_total{stage="uploading"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "neurosphere_stage_transitions_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "neurosphere_scans_finished_total", "neurosphere_visualizations_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `neurosphere_http_requests_total{code="200",method="GET",path="/ping"} 1`)
}
