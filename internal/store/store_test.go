package store_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"neurosphere-backend/internal/database"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

func newScan(owner string, createdAt time.Time) *models.Scan {
	return &models.Scan{
		ID:                      uuid.New(),
		Owner:                   owner,
		Filename:                "brain.jpg",
		ContentType:             "image/jpeg",
		Status:                  models.ScanStatusProcessing,
		Stage:                   models.StageQueued,
		SourceImageRef:          "scans/x/original.jpg",
		CreatedAt:               createdAt.UTC().Truncate(time.Millisecond),
		UpdatedAt:               createdAt.UTC().Truncate(time.Millisecond),
		EstimatedCompletionTime: createdAt.Add(5 * time.Minute).UTC().Truncate(time.Millisecond),
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	migrator, err := database.NewMigrator(ctx, url, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Run(ctx))
	require.NoError(t, migrator.Close())

	runStoreTests(t, func(t *testing.T) store.Store {
		s, err := store.NewPostgresStore(ctx, url)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(ctx) })
		return s
	})
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	runStoreTests(t, func(t *testing.T) store.Store {
		s, err := store.NewMongoStore(ctx, uri, "neurosphere_test_"+uuid.NewString()[:8])
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(ctx) })
		return s
	})
}

// Each subtest uses a fresh owner so shared databases do not leak state between cases.
func runStoreTests(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, open(t).Ping(ctx))
	})

	t.Run("insert and get", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())

		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		got, err := s.Scans().GetScan(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, scan.ID, got.ID)
		assert.Equal(t, models.StageQueued, got.Stage)
		assert.Nil(t, got.Result)
	})

	t.Run("get unknown scan", func(t *testing.T) {
		s := open(t)
		_, err := s.Scans().GetScan(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrRecordNotFound)
	})

	t.Run("claim only once", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())
		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Scans().ClaimScan(ctx, scan.ID); err == nil {
					mu.Lock()
					claimed++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, store.ErrConflict)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, claimed)
	})

	t.Run("progress never decreases", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())
		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		require.NoError(t, s.Scans().AdvanceScan(ctx, scan.ID, models.StageProcessing, 50))
		err := s.Scans().AdvanceScan(ctx, scan.ID, models.StageUploading, 10)
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.Scans().GetScan(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, got.Progress)
		assert.Equal(t, models.StageProcessing, got.Stage)
	})

	t.Run("single terminal write", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())
		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		require.NoError(t, s.Scans().FailScan(ctx, scan.ID, "classifier unavailable"))

		err := s.Scans().CompleteScan(ctx, scan.ID, models.ScanResult{Label: "glioma", TumorDetected: true})
		assert.ErrorIs(t, err, store.ErrConflict)
		err = s.Scans().AdvanceScan(ctx, scan.ID, models.StageBuilding3DModel, 75)
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.Scans().GetScan(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusFailed, got.Status)
		assert.Equal(t, "classifier unavailable", got.ErrorMessage)
		assert.Nil(t, got.Result)
	})

	t.Run("complete sets result", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())
		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		result := models.ScanResult{Label: "pituitary", TumorDetected: true, Location: "Pituitary", Size: "Unknown"}
		require.NoError(t, s.Scans().CompleteScan(ctx, scan.ID, result))

		got, err := s.Scans().GetScan(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusCompleted, got.Status)
		assert.Equal(t, models.StageCompleted, got.Stage)
		assert.Equal(t, 100, got.Progress)
		require.NotNil(t, got.Result)
		assert.Equal(t, "Pituitary", got.Result.Location)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		s := open(t)
		owner := uuid.NewString()
		base := time.Now().Add(-time.Hour)

		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			scan := newScan(owner, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.Scans().InsertScan(ctx, scan))
			ids = append(ids, scan.ID)
		}
		require.NoError(t, s.Scans().CompleteScan(ctx, ids[1], models.ScanResult{Label: "notumor"}))
		require.NoError(t, s.Scans().CompleteScan(ctx, ids[3], models.ScanResult{Label: "glioma", TumorDetected: true}))

		scans, total, err := s.Scans().ListScans(ctx, store.ScanFilter{Owner: owner}, store.Page{Offset: 0, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, scans, 2)
		assert.Equal(t, ids[4], scans[0].ID)
		assert.Equal(t, ids[3], scans[1].ID)

		scans, total, err = s.Scans().ListScans(ctx, store.ScanFilter{Owner: owner, Status: models.ScanStatusCompleted}, store.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, scans, 2)

		scans, _, err = s.Scans().ListScans(ctx, store.ScanFilter{Owner: owner}, store.Page{Offset: 10, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, scans)

		scans, _, err = s.Scans().ListScans(ctx, store.ScanFilter{Owner: owner}, store.Page{Offset: math.MaxInt - 1, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, scans)

		_, _, err = s.Scans().ListScans(ctx, store.ScanFilter{Owner: owner}, store.Page{Offset: -10, Limit: 10})
		assert.ErrorIs(t, err, store.ErrInvalidPage)

		detected := true
		n, err := s.Scans().CountScans(ctx, store.ScanFilter{Owner: owner, TumorDetected: &detected})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("visualization lifecycle", func(t *testing.T) {
		s := open(t)
		scan := newScan(uuid.NewString(), time.Now())
		require.NoError(t, s.Scans().InsertScan(ctx, scan))

		now := time.Now().UTC().Truncate(time.Millisecond)
		viz := &models.Visualization{
			ID:        uuid.New(),
			ScanID:    scan.ID,
			Owner:     scan.Owner,
			Status:    models.VisualizationStatusProcessing,
			Params:    models.DefaultVisualizationParams(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.Visualizations().InsertVisualization(ctx, viz))
		require.NoError(t, s.Scans().LinkVisualization(ctx, scan.ID, viz.ID))

		active, err := s.Visualizations().FindActiveVisualization(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, viz.ID, active.ID)

		require.NoError(t, s.Visualizations().UpdateVisualizationProgress(ctx, viz.ID, 60))
		assert.ErrorIs(t, s.Visualizations().UpdateVisualizationProgress(ctx, viz.ID, 30), store.ErrConflict)
		require.NoError(t, s.Visualizations().CompleteVisualization(ctx, viz.ID, "visualizations/"+viz.ID.String()+".html"))
		assert.ErrorIs(t, s.Visualizations().FailVisualization(ctx, viz.ID, "late"), store.ErrConflict)

		got, err := s.Visualizations().GetVisualization(ctx, viz.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VisualizationStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		assert.True(t, got.Params.HighlightTumor)

		_, err = s.Visualizations().FindActiveVisualization(ctx, scan.ID)
		assert.True(t, errors.Is(err, store.ErrRecordNotFound))

		linked, err := s.Scans().GetScan(ctx, scan.ID)
		require.NoError(t, err)
		require.NotNil(t, linked.VisualizationID)
		assert.Equal(t, viz.ID, *linked.VisualizationID)
	})
}
