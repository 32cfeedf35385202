package services

import (
	"context"
	"fmt"
	"time"

	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

// Stats summarizes the principal's scans for the dashboard.
func (s *ScanService) Stats(ctx context.Context, principal auth.Principal) (*models.StatsResponse, error) {
	owner := store.ScanFilter{Owner: principal.UserID}

	total, err := s.scans.CountScans(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	thisMonth, err := s.scans.CountScans(ctx, store.ScanFilter{Owner: principal.UserID, CreatedAfter: monthStart})
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	detected := true
	tumors, err := s.scans.CountScans(ctx, store.ScanFilter{Owner: principal.UserID, TumorDetected: &detected})
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	stats := &models.StatsResponse{
		TotalScans:     total,
		ScansThisMonth: thisMonth,
		TumorsDetected: tumors,
	}
	if total > 0 {
		stats.TumorPercentage = int(tumors * 100 / total)
	}

	latest, _, err := s.scans.ListScans(ctx, owner, store.Page{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scan: %w", err)
	}
	if len(latest) > 0 {
		last := latest[0].CreatedAt
		days := int(now.Sub(last).Hours() / 24)
		stats.LastScanDate = &last
		stats.LastScanDaysAgo = &days
	}
	return stats, nil
}
