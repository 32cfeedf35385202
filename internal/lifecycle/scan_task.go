package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/imaging"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

// stagePlan lists the persisted stage entries of a scan task, in order.
var stagePlan = []struct {
	stage    models.Stage
	progress int
}{
	{models.StageUploading, 10},
	{models.StageProcessing, 50},
	{models.StageBuilding3DModel, 75},
}

// errSuperseded aborts a task whose record was moved on by another writer.
var errSuperseded = errors.New("scan record no longer processing")

type scanTask struct {
	c      *Controller
	scan   *models.Scan
	source []byte
	result models.ScanResult
	logger *zap.Logger
}

func (c *Controller) runScan(scanID uuid.UUID) {
	ctx := context.Background()
	started := c.now()
	logger := c.logger.With(zap.String("scan_id", scanID.String()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan task panicked", zap.Any("panic", r))
			c.failScan(ctx, scanID, started, fmt.Sprintf("internal error: %v", r))
		}
	}()

	scan, err := c.scans.GetScan(ctx, scanID)
	if err != nil {
		logger.Error("failed to load scan", zap.Error(err))
		c.failScan(ctx, scanID, started, err.Error())
		return
	}

	task := &scanTask{c: c, scan: scan, logger: logger}
	steps := []func(context.Context) error{task.readSource, task.thumbnail, task.classify}

	for i, step := range stagePlan {
		if err := c.advance(ctx, scan, step.stage, step.progress); err != nil {
			if errors.Is(err, errSuperseded) {
				logger.Info("scan task stopped", zap.Error(err))
				return
			}
			c.failScan(ctx, scanID, started, err.Error())
			return
		}
		if err := steps[i](ctx); err != nil {
			logger.Warn("scan processing failed", zap.String("stage", string(step.stage)), zap.Error(err))
			c.failScan(ctx, scanID, started, err.Error())
			return
		}
	}

	if err := c.scans.CompleteScan(ctx, scanID, task.result); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("scan already terminal at completion")
			return
		}
		logger.Error("failed to complete scan", zap.Error(err))
		c.failScan(ctx, scanID, started, err.Error())
		return
	}

	c.metrics.ScanFinished(string(models.ScanStatusCompleted), c.now().Sub(started))
	c.publish(ctx, models.ScanCompletedEvent(scan))
	logger.Info("scan completed",
		zap.String("label", task.result.Label),
		zap.Bool("tumor_detected", task.result.TumorDetected))
}

func (c *Controller) advance(ctx context.Context, scan *models.Scan, stage models.Stage, progress int) error {
	if err := c.scans.AdvanceScan(ctx, scan.ID, stage, progress); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errSuperseded
		}
		return fmt.Errorf("failed to persist stage %s: %w", stage, err)
	}
	scan.Stage = stage
	scan.Progress = progress

	c.metrics.StageTransition(string(stage))
	c.publish(ctx, models.ScanProgressEvent(scan, stage, progress))
	c.settle()
	return nil
}

// failScan writes the failed status once. A record that is already terminal
// is left alone.
func (c *Controller) failScan(ctx context.Context, scanID uuid.UUID, started time.Time, msg string) {
	err := c.scans.FailScan(ctx, scanID, msg)
	if errors.Is(err, store.ErrConflict) {
		return
	}
	if err != nil {
		c.logger.Error("failed to mark scan failed", zap.String("scan_id", scanID.String()), zap.Error(err))
		return
	}

	c.metrics.ScanFinished(string(models.ScanStatusFailed), c.now().Sub(started))
	if scan, err := c.scans.GetScan(ctx, scanID); err == nil {
		c.publish(ctx, models.ScanFailedEvent(scan, msg))
	}
}

func (t *scanTask) readSource(ctx context.Context) error {
	data, err := t.c.artifacts.Get(ctx, t.scan.SourceImageRef)
	if err != nil {
		return fmt.Errorf("failed to read source image: %w", err)
	}
	t.source = data
	return nil
}

func (t *scanTask) isDICOM() bool {
	return strings.EqualFold(path.Ext(t.scan.SourceImageRef), ".dcm")
}

// thumbnail skips DICOM sources, which are not decoded locally.
func (t *scanTask) thumbnail(ctx context.Context) error {
	if t.isDICOM() {
		return nil
	}
	thumb, err := imaging.Thumbnail(t.source, imaging.ThumbnailMaxSide)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	ref := artifacts.ThumbnailPath(t.scan.ID)
	if err := t.c.artifacts.Put(ctx, ref, thumb, "image/jpeg"); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}
	t.result.ThumbnailRef = ref
	return nil
}

func (t *scanTask) classify(ctx context.Context) error {
	cls, err := t.c.classifier.Classify(ctx, t.scan.Filename, t.source)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	thumbnailRef := t.result.ThumbnailRef
	t.result = cls.Result()
	t.result.ThumbnailRef = thumbnailRef

	if len(cls.Heatmap) > 0 {
		ref := artifacts.HeatmapPath(t.scan.ID)
		if err := t.c.artifacts.Put(ctx, ref, cls.Heatmap, "image/png"); err != nil {
			return fmt.Errorf("failed to store heatmap: %w", err)
		}
		t.result.HeatmapRef = ref
	}
	return nil
}
