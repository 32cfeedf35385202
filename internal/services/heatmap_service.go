package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"neurosphere-backend/internal/models"
)

// Heatmap classifies a single image without creating a scan record.
func (s *ScanService) Heatmap(ctx context.Context, file UploadFile) (*models.HeatmapResponse, error) {
	upload, err := s.validateFile(file)
	if err != nil {
		return nil, err
	}
	if upload.IsDICOM() {
		return nil, invalidInput("heatmaps require a jpg or png image")
	}

	cls, err := s.classifier.Classify(ctx, file.Filename, file.Data)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	result := cls.Result()
	resp := &models.HeatmapResponse{
		Label:         result.Label,
		Confidence:    result.Confidence,
		TumorDetected: result.TumorDetected,
		Location:      result.Location,
	}
	if len(cls.Heatmap) > 0 {
		resp.Heatmap = "data:image/png;base64," + base64.StdEncoding.EncodeToString(cls.Heatmap)
	}
	return resp, nil
}
