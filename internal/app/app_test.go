package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"neurosphere-backend/internal/app"
	"neurosphere-backend/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		CORSAllowedOrigins:      []string{"*"},
		MaxUploadBytes:          1 << 20,
		StoreDriver:             config.StoreDriverMemory,
		ArtifactDriver:          config.ArtifactDriverMemory,
		ClassifierURL:           "http://127.0.0.1:1",
		ClassifierTimeout:       time.Second,
		WorkerCount:             1,
		QueueSize:               4,
		EstimatedProcessingTime: time.Minute,
	}
}

func TestNew_MemoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest("GET", "/api/scans", nil)
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, a.Close(closeCtx))
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	err := app.Migrate(context.Background(), memoryConfig(), zap.NewNop())
	assert.ErrorContains(t, err, "DATABASE_URL")
}
