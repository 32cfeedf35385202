// Package lifecycle drives scans and visualizations from creation to a
// terminal status on a background worker queue.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/classifier"
	"neurosphere-backend/internal/metrics"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

// ErrAlreadyStarted is returned when a scan was already claimed by a task.
var ErrAlreadyStarted = errors.New("scan processing already started")

type Classifier interface {
	Classify(ctx context.Context, filename string, image []byte) (*classifier.Classification, error)
}

type Renderer interface {
	Render(viz *models.Visualization, scan *models.Scan) ([]byte, error)
}

// Publisher receives lifecycle events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, event models.ScanEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.ScanEvent) error { return nil }

type Dependencies struct {
	Scans          store.ScanStore
	Visualizations store.VisualizationStore
	Artifacts      artifacts.Storage
	Classifier     Classifier
	Renderer       Renderer
	Publisher      Publisher
	Queue          *Queue
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	// SettleDelay is slept after each persisted transition.
	SettleDelay time.Duration
}

type Controller struct {
	scans          store.ScanStore
	visualizations store.VisualizationStore
	artifacts      artifacts.Storage
	classifier     Classifier
	renderer       Renderer
	publisher      Publisher
	queue          *Queue
	metrics        *metrics.Metrics
	logger         *zap.Logger
	settleDelay    time.Duration
	now            func() time.Time
}

func NewController(deps Dependencies) *Controller {
	c := &Controller{
		scans:          deps.Scans,
		visualizations: deps.Visualizations,
		artifacts:      deps.Artifacts,
		classifier:     deps.Classifier,
		renderer:       deps.Renderer,
		publisher:      deps.Publisher,
		queue:          deps.Queue,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		settleDelay:    deps.SettleDelay,
		now:            time.Now,
	}
	if c.publisher == nil {
		c.publisher = NoopPublisher{}
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// StartScanProcessing claims a queued scan and hands it to the worker queue.
// It returns once the task is queued.
func (c *Controller) StartScanProcessing(ctx context.Context, scanID uuid.UUID) error {
	if err := c.scans.ClaimScan(ctx, scanID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyStarted
		}
		return err
	}
	c.metrics.ScanStarted()

	err := c.queue.Submit(func() { c.runScan(scanID) })
	if err != nil {
		c.logger.Warn("scan not queued", zap.String("scan_id", scanID.String()), zap.Error(err))
		c.failScan(context.Background(), scanID, c.now(), err.Error())
		return nil
	}
	return nil
}

// StartVisualizationGeneration queues rendering for an inserted visualization record.
func (c *Controller) StartVisualizationGeneration(ctx context.Context, vizID, scanID uuid.UUID, params models.VisualizationParams) error {
	viz, err := c.visualizations.GetVisualization(ctx, vizID)
	if err != nil {
		return err
	}
	if viz.ScanID != scanID {
		return fmt.Errorf("visualization %s does not belong to scan %s", vizID, scanID)
	}
	if _, err := c.scans.GetScan(ctx, scanID); err != nil {
		return err
	}

	err = c.queue.Submit(func() { c.runVisualization(viz, params) })
	if err != nil {
		c.logger.Warn("visualization not queued", zap.String("visualization_id", vizID.String()), zap.Error(err))
		c.failVisualization(context.Background(), viz, err.Error())
	}
	return nil
}

// Snapshot is a read of a scan's lifecycle with the remaining time estimate.
type Snapshot struct {
	Scan *models.Scan
	// EstimatedTimeRemaining is in whole seconds, clamped at zero.
	EstimatedTimeRemaining int64
}

func (c *Controller) GetStatus(ctx context.Context, scanID uuid.UUID) (*Snapshot, error) {
	scan, err := c.scans.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Scan: scan, EstimatedTimeRemaining: c.remaining(scan)}, nil
}

// Details extends a snapshot with the linked visualization, when present.
type Details struct {
	Snapshot
	Visualization *models.Visualization
}

func (c *Controller) GetDetails(ctx context.Context, scanID uuid.UUID) (*Details, error) {
	snap, err := c.GetStatus(ctx, scanID)
	if err != nil {
		return nil, err
	}
	d := &Details{Snapshot: *snap}
	if vizID := snap.Scan.VisualizationID; vizID != nil {
		viz, err := c.visualizations.GetVisualization(ctx, *vizID)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
		d.Visualization = viz
	}
	return d, nil
}

func (c *Controller) remaining(scan *models.Scan) int64 {
	if scan.Status.Terminal() {
		return 0
	}
	left := scan.EstimatedCompletionTime.Sub(c.now())
	if left < 0 {
		return 0
	}
	return int64(left / time.Second)
}

func (c *Controller) publish(ctx context.Context, event models.ScanEvent) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish lifecycle event",
			zap.String("scan_id", event.ScanID.String()),
			zap.String("kind", event.Kind),
			zap.Error(err))
	}
}

func (c *Controller) settle() {
	if c.settleDelay > 0 {
		time.Sleep(c.settleDelay)
	}
}
