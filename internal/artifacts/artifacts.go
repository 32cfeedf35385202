// Package artifacts stores scan blobs: source images, thumbnails, heatmaps and
// rendered visualization pages.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("artifact not found")

type Storage interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// SourcePath is scans/{id}/original{ext}, ext taken from the uploaded file name.
func SourcePath(scanID uuid.UUID, filename string) string {
	return fmt.Sprintf("scans/%s/original%s", scanID, strings.ToLower(path.Ext(filename)))
}

func ThumbnailPath(scanID uuid.UUID) string {
	return fmt.Sprintf("scans/%s/thumbnail.jpg", scanID)
}

func HeatmapPath(scanID uuid.UUID) string {
	return fmt.Sprintf("scans/%s/heatmap.png", scanID)
}

func VisualizationPath(visualizationID uuid.UUID) string {
	return fmt.Sprintf("visualizations/%s.html", visualizationID)
}
