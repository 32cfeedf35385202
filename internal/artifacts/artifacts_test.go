package artifacts_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/config"
)

func TestPaths(t *testing.T) {
	id := uuid.MustParse("0b6e1b1e-5a57-4c1c-9d1e-2f0c8f7a1a11")

	assert.Equal(t, "scans/"+id.String()+"/original.jpg", artifacts.SourcePath(id, "Brain.JPG"))
	assert.Equal(t, "scans/"+id.String()+"/original.dcm", artifacts.SourcePath(id, "study.dcm"))
	assert.Equal(t, "scans/"+id.String()+"/thumbnail.jpg", artifacts.ThumbnailPath(id))
	assert.Equal(t, "scans/"+id.String()+"/heatmap.png", artifacts.HeatmapPath(id))
	assert.Equal(t, "visualizations/"+id.String()+".html", artifacts.VisualizationPath(id))
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := artifacts.NewMemoryStorage()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, artifacts.ErrNotFound)

	data := []byte("payload")
	require.NoError(t, s.Put(ctx, "a/b", data, "text/plain"))
	data[0] = 'X'

	got, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	require.NoError(t, s.Delete(ctx, "a/b"))
	_, err = s.Get(ctx, "a/b")
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := artifacts.Open(context.Background(), &config.Config{ArtifactDriver: "ftp"})
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := artifacts.Open(context.Background(), &config.Config{ArtifactDriver: config.ArtifactDriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &artifacts.MemoryStorage{}, s)
}
