// Package store persists scan and visualization records. Lifecycle updates are
// guarded at the store level: stage/progress only move forward while a record
// is processing, and a record receives at most one terminal write.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"neurosphere-backend/internal/models"
)

// ScanFilter narrows ListScans and CountScans. Zero values match everything.
type ScanFilter struct {
	Owner         string
	Status        models.ScanStatus
	TumorDetected *bool
	CreatedAfter  time.Time
}

// Page selects a window of results ordered newest first. A zero Limit means
// no limit.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) validate() error {
	if p.Offset < 0 || p.Limit < 0 {
		return fmt.Errorf("%w: offset %d, limit %d", ErrInvalidPage, p.Offset, p.Limit)
	}
	return nil
}

type ScanStore interface {
	InsertScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	ListScans(ctx context.Context, filter ScanFilter, page Page) ([]models.Scan, int64, error)
	CountScans(ctx context.Context, filter ScanFilter) (int64, error)

	// ClaimScan marks a queued, unclaimed scan as owned by a lifecycle task.
	ClaimScan(ctx context.Context, id uuid.UUID) error
	AdvanceScan(ctx context.Context, id uuid.UUID, stage models.Stage, progress int) error
	CompleteScan(ctx context.Context, id uuid.UUID, result models.ScanResult) error
	FailScan(ctx context.Context, id uuid.UUID, errorMessage string) error
	LinkVisualization(ctx context.Context, scanID, visualizationID uuid.UUID) error
}

type VisualizationStore interface {
	InsertVisualization(ctx context.Context, viz *models.Visualization) error
	GetVisualization(ctx context.Context, id uuid.UUID) (*models.Visualization, error)
	// FindActiveVisualization returns the processing visualization of a scan.
	FindActiveVisualization(ctx context.Context, scanID uuid.UUID) (*models.Visualization, error)
	UpdateVisualizationProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteVisualization(ctx context.Context, id uuid.UUID, htmlRef string) error
	FailVisualization(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type Store interface {
	Scans() ScanStore
	Visualizations() VisualizationStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
