package services_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/classifier"
	"neurosphere-backend/internal/lifecycle"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/render"
	"neurosphere-backend/internal/services"
	"neurosphere-backend/internal/store"
)

type stubClassifier struct {
	result *classifier.Classification
	err    error
}

func (s stubClassifier) Classify(context.Context, string, []byte) (*classifier.Classification, error) {
	return s.result, s.err
}

var (
	alice = auth.Principal{UserID: "alice"}
	bob   = auth.Principal{UserID: "bob"}
)

type fixture struct {
	store     *store.MemoryStore
	artifacts *artifacts.MemoryStorage
	queue     *lifecycle.Queue
	service   *services.ScanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	renderer, err := render.NewRenderer()
	require.NoError(t, err)

	cls := stubClassifier{result: &classifier.Classification{
		Label:   classifier.LabelMeningioma,
		Region:  "parietal",
		Size:    "1.8cm",
		Heatmap: []byte("png"),
	}}

	f := &fixture{
		store:     store.NewMemoryStore(),
		artifacts: artifacts.NewMemoryStorage(),
		queue:     lifecycle.NewQueue(1, 32, nil),
	}
	controller := lifecycle.NewController(lifecycle.Dependencies{
		Scans:          f.store.Scans(),
		Visualizations: f.store.Visualizations(),
		Artifacts:      f.artifacts,
		Classifier:     cls,
		Renderer:       renderer,
		Queue:          f.queue,
	})
	f.service = services.NewScanService(f.store, f.artifacts, controller, cls, zap.NewNop(), services.Config{
		EstimatedProcessingTime: 5 * time.Minute,
		MaxUploadBytes:          1 << 20,
	})
	return f
}

func pngFile(t *testing.T, name string) services.UploadFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32))))
	return services.UploadFile{Filename: name, Data: buf.Bytes()}
}

// seed inserts scans for owner directly, spaced one minute apart, oldest first.
func (f *fixture) seed(t *testing.T, owner string, n int, status models.ScanStatus, start time.Time) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < n; i++ {
		created := start.Add(time.Duration(i) * time.Minute)
		scan := &models.Scan{
			ID:                      uuid.New(),
			Owner:                   owner,
			Filename:                "seed.png",
			Status:                  models.ScanStatusProcessing,
			Stage:                   models.StageQueued,
			SourceImageRef:          "seed",
			CreatedAt:               created,
			UpdatedAt:               created,
			EstimatedCompletionTime: created.Add(5 * time.Minute),
		}
		require.NoError(t, f.store.InsertScan(ctx, scan))
		switch status {
		case models.ScanStatusCompleted:
			require.NoError(t, f.store.CompleteScan(ctx, scan.ID, models.ScanResult{
				Label: "glioma", TumorDetected: i%2 == 0, Location: "Frontal lobe", ThumbnailRef: "thumb",
			}))
		case models.ScanStatusFailed:
			require.NoError(t, f.store.FailScan(ctx, scan.ID, "boom"))
		}
		ids = append(ids, scan.ID)
	}
	return ids
}

func TestUpload_CreatesQueuedScanAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, alice, pngFile(t, "brain.PNG"), `{"patientName":"J. Doe","doctor":"Dr. Grey"}`)
	require.NoError(t, err)

	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "queued", resp.Stage)
	assert.Equal(t, 0, resp.Progress)
	assert.WithinDuration(t, resp.CreatedAt.Add(5*time.Minute), resp.EstimatedCompletionTime, time.Second)

	f.queue.Close()

	id := uuid.MustParse(resp.ID)
	details, err := f.service.Details(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", details.Status)
	assert.Equal(t, 100, details.Progress)
	assert.Equal(t, "Dr. Grey", details.Doctor)
	assert.Equal(t, "J. Doe", details.Metadata["patientName"])
	require.NotNil(t, details.TumorDetected)
	assert.True(t, *details.TumorDetected)
	assert.Equal(t, "Parietal lobe", details.Location)
	assert.Equal(t, "/api/scans/"+resp.ID+"/thumbnail", details.ThumbnailURL)
	assert.Equal(t, "/api/scans/"+resp.ID+"/heatmap", details.HeatmapURL)
	assert.Equal(t, int64(0), details.EstimatedTimeRemaining)

	thumb, contentType, err := f.service.ScanArtifact(ctx, alice, id, services.ArtifactThumbnail)
	require.NoError(t, err)
	assert.NotEmpty(t, thumb)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestUpload_RejectsGIF(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()
	ctx := context.Background()

	_, err := f.service.Upload(ctx, alice, services.UploadFile{Filename: "scan.gif", Data: []byte("GIF89a....")}, "")

	assert.ErrorIs(t, err, services.ErrInvalidInput)
	n, err := f.store.CountScans(ctx, store.ScanFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpload_RejectsMalformedMetadata(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()

	for _, meta := range []string{`{"doctor":`, `["a"]`, `"text"`, `null`} {
		_, err := f.service.Upload(context.Background(), alice, pngFile(t, "brain.png"), meta)
		assert.ErrorIs(t, err, services.ErrInvalidInput, meta)
	}
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()

	file := pngFile(t, "brain.png")
	file.Data = append(file.Data, make([]byte, 1<<20)...)
	_, err := f.service.Upload(context.Background(), alice, file, "")
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestList_PaginatesCompletedScans(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()
	start := time.Now().Add(-24 * time.Hour)

	completed := f.seed(t, alice.UserID, 25, models.ScanStatusCompleted, start)
	f.seed(t, alice.UserID, 4, models.ScanStatusFailed, start.Add(time.Hour))
	f.seed(t, bob.UserID, 3, models.ScanStatusCompleted, start)

	resp, err := f.service.List(context.Background(), alice, services.ListParams{Status: "completed", Page: 2, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(25), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 3, resp.TotalPages)
	require.Len(t, resp.Scans, 10)
	for _, s := range resp.Scans {
		assert.Equal(t, "completed", s.Status)
	}
	// newest first: page 2 starts at the 11th newest
	assert.Equal(t, completed[14].String(), resp.Scans[0].ID)
	assert.Equal(t, completed[5].String(), resp.Scans[9].ID)
}

func TestList_Defaults(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()
	f.seed(t, alice.UserID, 3, models.ScanStatusProcessing, time.Now())

	resp, err := f.service.List(context.Background(), alice, services.ListParams{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 1, resp.TotalPages)
	assert.Len(t, resp.Scans, 3)

	empty, err := f.service.List(context.Background(), bob, services.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 10, empty.Limit)
	assert.Equal(t, 0, empty.TotalPages)
	assert.NotNil(t, empty.Scans)

	_, err = f.service.List(context.Background(), alice, services.ListParams{Status: "archived"})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestList_HugePage(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()
	f.seed(t, alice.UserID, 3, models.ScanStatusCompleted, time.Now())

	for _, page := range []int{math.MaxInt, math.MaxInt / 10, 1_000_000_000_000_000_000} {
		resp, err := f.service.List(context.Background(), alice, services.ListParams{Page: page, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, page, resp.Page)
		assert.Equal(t, int64(3), resp.Total)
		assert.Equal(t, 1, resp.TotalPages)
		assert.Empty(t, resp.Scans)
	}
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()

	_, err := f.service.Status(context.Background(), alice, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)

	ids := f.seed(t, bob.UserID, 1, models.ScanStatusProcessing, time.Now())
	_, err = f.service.Status(context.Background(), alice, ids[0])
	assert.ErrorIs(t, err, services.ErrNotFound)

	status, err := f.service.Status(context.Background(), bob, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "queued", status.Stage)
	assert.Greater(t, status.EstimatedTimeRemaining, int64(0))
}

func TestVisualize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.seed(t, alice.UserID, 1, models.ScanStatusProcessing, time.Now())
	_, err := f.service.Visualize(ctx, alice, pending[0], models.VisualizeRequest{})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	bad := "ultra"
	done := f.seed(t, alice.UserID, 1, models.ScanStatusCompleted, time.Now())
	_, err = f.service.Visualize(ctx, alice, done[0], models.VisualizeRequest{Quality: &bad})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = f.service.Visualize(ctx, bob, done[0], models.VisualizeRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound)

	// Hold the single worker so the visualization stays processing.
	release := make(chan struct{})
	require.NoError(t, f.queue.Submit(func() { <-release }))

	first, err := f.service.Visualize(ctx, alice, done[0], models.VisualizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "processing", first.Status)
	assert.Equal(t, done[0].String(), first.ScanID)

	second, err := f.service.Visualize(ctx, alice, done[0], models.VisualizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, first.VisualizationID, second.VisualizationID)

	vizID := uuid.MustParse(first.VisualizationID)
	_, err = f.service.Visualization(ctx, alice, vizID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	close(release)
	f.queue.Close()

	page, err := f.service.Visualization(ctx, alice, vizID)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<!DOCTYPE html>")

	_, err = f.service.Visualization(ctx, bob, vizID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.service.Visualization(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)

	details, err := f.service.Details(ctx, alice, done[0])
	require.NoError(t, err)
	assert.Equal(t, "/api/visualizations/"+first.VisualizationID, details.VisualizationURL)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()

	empty, err := f.service.Stats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalScans)
	assert.Equal(t, 0, empty.TumorPercentage)
	assert.Nil(t, empty.LastScanDate)

	// 6 completed scans, tumors on even indexes: 3 of 6.
	f.seed(t, alice.UserID, 6, models.ScanStatusCompleted, time.Now().Add(-time.Hour))
	stats, err := f.service.Stats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.TotalScans)
	assert.Equal(t, int64(3), stats.TumorsDetected)
	assert.Equal(t, 50, stats.TumorPercentage)
	require.NotNil(t, stats.LastScanDaysAgo)
	assert.Equal(t, 0, *stats.LastScanDaysAgo)
}

func TestHeatmap(t *testing.T) {
	f := newFixture(t)
	defer f.queue.Close()

	resp, err := f.service.Heatmap(context.Background(), pngFile(t, "one.png"))
	require.NoError(t, err)
	assert.Equal(t, "meningioma", resp.Label)
	assert.True(t, resp.TumorDetected)
	assert.Equal(t, "data:image/png;base64,cG5n", resp.Heatmap)

	n, err := f.store.CountScans(context.Background(), store.ScanFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = f.service.Heatmap(context.Background(), services.UploadFile{Filename: "x.bmp", Data: []byte("BM")})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}
