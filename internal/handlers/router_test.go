package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/classifier"
	"neurosphere-backend/internal/handlers"
	"neurosphere-backend/internal/lifecycle"
	"neurosphere-backend/internal/metrics"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/render"
	"neurosphere-backend/internal/services"
	"neurosphere-backend/internal/store"
)

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string, []byte) (*classifier.Classification, error) {
	return &classifier.Classification{
		Label:      classifier.LabelGlioma,
		Confidence: 0.91,
		Region:     "frontal",
		Heatmap:    []byte("png"),
	}, nil
}

type testServer struct {
	router *gin.Engine
	queue  *lifecycle.Queue
}

func newTestServer(t *testing.T, validator auth.Validator, required bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	renderer, err := render.NewRenderer()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	blobs := artifacts.NewMemoryStorage()
	queue := lifecycle.NewQueue(1, 32, nil)
	controller := lifecycle.NewController(lifecycle.Dependencies{
		Scans:          st.Scans(),
		Visualizations: st.Visualizations(),
		Artifacts:      blobs,
		Classifier:     stubClassifier{},
		Renderer:       renderer,
		Queue:          queue,
	})
	service := services.NewScanService(st, blobs, controller, stubClassifier{}, zap.NewNop(), services.Config{
		EstimatedProcessingTime: time.Minute,
		MaxUploadBytes:          1 << 20,
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:        service,
		Store:          st,
		Validator:      validator,
		AuthRequired:   required,
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 1 << 20,
		Metrics:        metrics.New(),
		Logger:         zap.NewNop(),
	})
	return &testServer{router: router, queue: queue}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, filename string, data []byte, metadata string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if metadata != "" {
		require.NoError(t, mw.WriteField("metadata", metadata))
	}
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestUpload_Accepted(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	w := s.do(multipartRequest(t, "/api/scans/upload", "brain.png", pngBytes(t), `{"doctor":"Dr. House"}`))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp models.UploadResponse
	decode(t, w, &resp)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "queued", resp.Stage)
	assert.Equal(t, 0, resp.Progress)

	s.queue.Close()

	req, _ := http.NewRequest("GET", "/api/scans/"+resp.ID+"/status", nil)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.StatusResponse
	decode(t, w, &status)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, int64(0), status.EstimatedTimeRemaining)

	req, _ = http.NewRequest("GET", "/api/scans/"+resp.ID+"/thumbnail", nil)
	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
}

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	w := s.do(multipartRequest(t, "/api/scans/upload", "brain.gif", []byte("GIF89a"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req, _ := http.NewRequest("GET", "/api/scans", nil)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ScanListResponse
	decode(t, w, &list)
	assert.Equal(t, int64(0), list.Total)
	assert.Empty(t, list.Scans)
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	req, _ := http.NewRequest("POST", "/api/scans/upload", nil)
	w := s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScans_Pagination(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)
	for i := 0; i < 3; i++ {
		w := s.do(multipartRequest(t, "/api/scans/upload", "brain.png", pngBytes(t), ""))
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	s.queue.Close()

	req, _ := http.NewRequest("GET", "/api/scans?status=completed&page=2&limit=2", nil)
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ScanListResponse
	decode(t, w, &list)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 2, list.Limit)
	assert.Equal(t, 2, list.TotalPages)
	assert.Len(t, list.Scans, 1)
}

func TestListScans_HugePage(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)
	w := s.do(multipartRequest(t, "/api/scans/upload", "brain.png", pngBytes(t), ""))
	require.Equal(t, http.StatusAccepted, w.Code)
	s.queue.Close()

	req, _ := http.NewRequest("GET", "/api/scans?page=1000000000000000000&limit=10", nil)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list models.ScanListResponse
	decode(t, w, &list)
	assert.Equal(t, int64(1), list.Total)
	assert.Empty(t, list.Scans)
}

func TestListScans_BadQuery(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	for _, path := range []string{"/api/scans?page=abc", "/api/scans?status=archived"} {
		req, _ := http.NewRequest("GET", path, nil)
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		req, _ := http.NewRequest("GET", "/api/scans/"+id+"/status", nil)
		w := s.do(req)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
	}
}

func TestVisualize_NotCompleted(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	req, _ := http.NewRequest("POST", "/api/scans/"+uuid.NewString()+"/visualize", nil)
	w := s.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req, _ = http.NewRequest("GET", "/api/visualizations/"+uuid.NewString(), nil)
	w = s.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVisualize_Completed(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	w := s.do(multipartRequest(t, "/api/scans/upload", "brain.png", pngBytes(t), ""))
	require.Equal(t, http.StatusAccepted, w.Code)
	var upload models.UploadResponse
	decode(t, w, &upload)

	// Wait for the scan to finish before asking for a visualization.
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest("GET", "/api/scans/"+upload.ID+"/status", nil)
		var status models.StatusResponse
		rec := s.do(req)
		return json.Unmarshal(rec.Body.Bytes(), &status) == nil && status.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	req, _ := http.NewRequest("POST", "/api/scans/"+upload.ID+"/visualize", bytes.NewBufferString(`{"quality":"low"}`))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var viz models.VisualizeResponse
	decode(t, w, &viz)
	s.queue.Close()

	req, _ = http.NewRequest("GET", "/api/visualizations/"+viz.VisualizationID, nil)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<html")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, auth.NewJWTValidator("secret", ""), true)

	for _, path := range []string{"/api/scans", "/api/users/stats", "/api/auth/validate"} {
		req, _ := http.NewRequest("GET", path, nil)
		w := s.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req, _ := http.NewRequest("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, s.do(req).Code)
}

func TestValidateSession(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	req, _ := http.NewRequest("GET", "/api/auth/validate", nil)
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.AuthValidateResponse
	decode(t, w, &resp)
	assert.True(t, resp.IsAuthenticated)
	assert.Equal(t, auth.LocalUserID, resp.UserID)
}

func TestUserStats(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	req, _ := http.NewRequest("GET", "/api/users/stats", nil)
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.StatsResponse
	decode(t, w, &stats)
	assert.Equal(t, int64(0), stats.TotalScans)
	assert.Nil(t, stats.LastScanDate)
}

func TestMRIHeatmap(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	w := s.do(multipartRequest(t, "/api/mri/heatmap", "brain.png", pngBytes(t), ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.HeatmapResponse
	decode(t, w, &resp)
	assert.Equal(t, "glioma", resp.Label)
	assert.True(t, resp.TumorDetected)
	assert.Equal(t, "Frontal lobe", resp.Location)
	assert.Contains(t, resp.Heatmap, "data:image/png;base64,")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, auth.NewNoneValidator(), false)

	req, _ := http.NewRequest("GET", "/health", nil)
	s.do(req)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "neurosphere_http_requests_total")
}
