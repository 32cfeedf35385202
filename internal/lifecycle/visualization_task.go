package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

// runVisualization reloads the record queued by StartVisualizationGeneration.
// The queued copy is only used to fail it when the reload does not succeed.
func (c *Controller) runVisualization(queued *models.Visualization, params models.VisualizationParams) {
	ctx := context.Background()
	vizID := queued.ID
	logger := c.logger.With(zap.String("visualization_id", vizID.String()))

	viz, err := c.visualizations.GetVisualization(ctx, vizID)
	if err != nil {
		logger.Error("failed to load visualization", zap.Error(err))
		c.failVisualization(ctx, queued, fmt.Sprintf("failed to load visualization: %v", err))
		return
	}
	viz.Params = params

	defer func() {
		if r := recover(); r != nil {
			logger.Error("visualization task panicked", zap.Any("panic", r))
			c.failVisualization(ctx, viz, fmt.Sprintf("internal error: %v", r))
		}
	}()

	htmlRef, err := c.generate(ctx, viz)
	if err != nil {
		if errors.Is(err, errSuperseded) {
			logger.Info("visualization task stopped", zap.Error(err))
			return
		}
		logger.Warn("visualization failed", zap.Error(err))
		c.failVisualization(ctx, viz, err.Error())
		return
	}

	if err := c.visualizations.CompleteVisualization(ctx, vizID, htmlRef); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			logger.Error("failed to complete visualization", zap.Error(err))
			c.failVisualization(ctx, viz, err.Error())
		}
		return
	}

	c.metrics.VisualizationFinished(string(models.VisualizationStatusCompleted))
	c.publish(ctx, models.VisualizationCompletedEvent(viz))
	logger.Info("visualization completed", zap.String("html_ref", htmlRef))
}

// generate loads the scan, renders the page and stores it, advancing progress
// 30, 60 and 90 along the way.
func (c *Controller) generate(ctx context.Context, viz *models.Visualization) (string, error) {
	if err := c.visualizationProgress(ctx, viz, 30); err != nil {
		return "", err
	}
	scan, err := c.scans.GetScan(ctx, viz.ScanID)
	if err != nil {
		return "", fmt.Errorf("failed to load scan: %w", err)
	}
	if scan.Status != models.ScanStatusCompleted {
		return "", fmt.Errorf("scan %s is %s, not completed", scan.ID, scan.Status)
	}

	if err := c.visualizationProgress(ctx, viz, 60); err != nil {
		return "", err
	}
	page, err := c.renderer.Render(viz, scan)
	if err != nil {
		return "", err
	}

	if err := c.visualizationProgress(ctx, viz, 90); err != nil {
		return "", err
	}
	ref := artifacts.VisualizationPath(viz.ID)
	if err := c.artifacts.Put(ctx, ref, page, "text/html; charset=utf-8"); err != nil {
		return "", fmt.Errorf("failed to store visualization: %w", err)
	}
	return ref, nil
}

func (c *Controller) visualizationProgress(ctx context.Context, viz *models.Visualization, progress int) error {
	if err := c.visualizations.UpdateVisualizationProgress(ctx, viz.ID, progress); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errSuperseded
		}
		return fmt.Errorf("failed to persist visualization progress: %w", err)
	}
	viz.Progress = progress
	c.publish(ctx, models.VisualizationProgressEvent(viz, progress))
	c.settle()
	return nil
}

func (c *Controller) failVisualization(ctx context.Context, viz *models.Visualization, msg string) {
	err := c.visualizations.FailVisualization(ctx, viz.ID, msg)
	if errors.Is(err, store.ErrConflict) {
		return
	}
	if err != nil {
		c.logger.Error("failed to mark visualization failed", zap.String("visualization_id", viz.ID.String()), zap.Error(err))
		return
	}
	c.metrics.VisualizationFinished(string(models.VisualizationStatusFailed))
	c.publish(ctx, models.VisualizationFailedEvent(viz, msg))
}
