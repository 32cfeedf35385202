package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/render"
	"neurosphere-backend/internal/store"
)

// visualizationEstimate is the advisory completion offset reported to clients.
const visualizationEstimate = 30 * time.Second

func resolveParams(req models.VisualizeRequest) (models.VisualizationParams, error) {
	params := models.DefaultVisualizationParams()
	if req.Quality != nil {
		q := strings.ToLower(strings.TrimSpace(*req.Quality))
		if !render.ValidQuality(q) {
			return params, invalidInput("quality must be low, medium or high")
		}
		params.Quality = q
	}
	if req.HighlightTumor != nil {
		params.HighlightTumor = *req.HighlightTumor
	}
	if req.ColorScheme != nil && strings.TrimSpace(*req.ColorScheme) != "" {
		params.ColorScheme = strings.TrimSpace(*req.ColorScheme)
	}
	return params, nil
}

// Visualize starts 3D visualization for a completed scan. A scan whose
// visualization is still processing gets that visualization back.
func (s *ScanService) Visualize(ctx context.Context, principal auth.Principal, scanID uuid.UUID, req models.VisualizeRequest) (*models.VisualizeResponse, error) {
	params, err := resolveParams(req)
	if err != nil {
		return nil, err
	}

	s.vizMu.Lock()
	defer s.vizMu.Unlock()

	scan, err := s.ownedScan(ctx, principal, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status != models.ScanStatusCompleted {
		return nil, invalidInput("scan is not completed")
	}

	active, err := s.visualizations.FindActiveVisualization(ctx, scanID)
	switch {
	case err == nil:
		return visualizeResponse(active), nil
	case !errors.Is(err, store.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up visualization: %w", err)
	}

	now := s.now().UTC()
	viz := &models.Visualization{
		ID:        uuid.New(),
		ScanID:    scan.ID,
		Owner:     scan.Owner,
		Status:    models.VisualizationStatusProcessing,
		Progress:  0,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.visualizations.InsertVisualization(ctx, viz); err != nil {
		return nil, fmt.Errorf("failed to create visualization: %w", err)
	}
	if err := s.scans.LinkVisualization(ctx, scan.ID, viz.ID); err != nil {
		return nil, fmt.Errorf("failed to link visualization: %w", err)
	}
	if err := s.controller.StartVisualizationGeneration(ctx, viz.ID, scan.ID, params); err != nil {
		return nil, fmt.Errorf("failed to start visualization: %w", err)
	}

	s.logger.Info("visualization requested",
		zap.String("scan_id", scan.ID.String()),
		zap.String("visualization_id", viz.ID.String()),
		zap.String("quality", params.Quality))

	return visualizeResponse(viz), nil
}

func visualizeResponse(viz *models.Visualization) *models.VisualizeResponse {
	return &models.VisualizeResponse{
		VisualizationID:         viz.ID.String(),
		ScanID:                  viz.ScanID.String(),
		Status:                  string(viz.Status),
		Progress:                viz.Progress,
		EstimatedCompletionTime: viz.CreatedAt.Add(visualizationEstimate),
	}
}

// Visualization returns the rendered page of a completed visualization.
func (s *ScanService) Visualization(ctx context.Context, principal auth.Principal, vizID uuid.UUID) ([]byte, error) {
	viz, err := s.visualizations.GetVisualization(ctx, vizID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, notFound("visualization %s", vizID)
		}
		return nil, err
	}
	if viz.Owner != principal.UserID || viz.Status != models.VisualizationStatusCompleted || viz.HTMLRef == "" {
		return nil, notFound("visualization %s", vizID)
	}

	page, err := s.artifacts.Get(ctx, viz.HTMLRef)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, notFound("visualization %s", vizID)
		}
		return nil, err
	}
	return page, nil
}
