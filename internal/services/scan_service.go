// Package services implements the scan operations behind the HTTP handlers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"neurosphere-backend/internal/artifacts"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/imaging"
	"neurosphere-backend/internal/lifecycle"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/store"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// UploadFile is an uploaded scan image read into memory.
type UploadFile struct {
	Filename string
	Data     []byte
}

type Config struct {
	EstimatedProcessingTime time.Duration
	MaxUploadBytes          int64
}

type ScanService struct {
	scans          store.ScanStore
	visualizations store.VisualizationStore
	artifacts      artifacts.Storage
	controller     *lifecycle.Controller
	classifier     lifecycle.Classifier
	logger         *zap.Logger
	cfg            Config
	now            func() time.Time

	// vizMu serializes visualize triggers so a scan gets at most one active visualization.
	vizMu sync.Mutex
}

func NewScanService(
	st store.Store,
	storage artifacts.Storage,
	controller *lifecycle.Controller,
	classifier lifecycle.Classifier,
	logger *zap.Logger,
	cfg Config,
) *ScanService {
	return &ScanService{
		scans:          st.Scans(),
		visualizations: st.Visualizations(),
		artifacts:      storage,
		controller:     controller,
		classifier:     classifier,
		logger:         logger,
		cfg:            cfg,
		now:            time.Now,
	}
}

func (s *ScanService) validateFile(file UploadFile) (imaging.Upload, error) {
	if s.cfg.MaxUploadBytes > 0 && int64(len(file.Data)) > s.cfg.MaxUploadBytes {
		return imaging.Upload{}, invalidInput("file exceeds %d bytes", s.cfg.MaxUploadBytes)
	}
	upload, err := imaging.ValidateUpload(file.Filename, file.Data)
	if err != nil {
		return imaging.Upload{}, invalidInput("%s", err.Error())
	}
	return upload, nil
}

// parseMetadata accepts an empty string or a JSON object.
func parseMetadata(raw string) (json.RawMessage, map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return nil, nil, invalidInput("metadata must be a JSON object")
	}
	return json.RawMessage(raw), fields, nil
}

// Upload stores the source image, creates the scan record in its initial
// state and starts processing.
func (s *ScanService) Upload(ctx context.Context, principal auth.Principal, file UploadFile, metadataJSON string) (*models.UploadResponse, error) {
	upload, err := s.validateFile(file)
	if err != nil {
		return nil, err
	}
	metadata, fields, err := parseMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scan := &models.Scan{
		ID:                      uuid.New(),
		Owner:                   principal.UserID,
		Filename:                file.Filename,
		ContentType:             upload.ContentType,
		Metadata:                metadata,
		Status:                  models.ScanStatusProcessing,
		Stage:                   models.StageQueued,
		Progress:                0,
		CreatedAt:               now,
		UpdatedAt:               now,
		EstimatedCompletionTime: now.Add(s.cfg.EstimatedProcessingTime),
	}
	if doctor, ok := fields["doctor"].(string); ok {
		scan.Doctor = doctor
	}
	scan.SourceImageRef = artifacts.SourcePath(scan.ID, file.Filename)

	if err := s.artifacts.Put(ctx, scan.SourceImageRef, file.Data, upload.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store scan image: %w", err)
	}

	if err := s.scans.InsertScan(ctx, scan); err != nil {
		if delErr := s.artifacts.Delete(ctx, scan.SourceImageRef); delErr != nil {
			s.logger.Warn("failed to remove orphaned scan image",
				zap.String("ref", scan.SourceImageRef), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create scan: %w", err)
	}

	if err := s.controller.StartScanProcessing(ctx, scan.ID); err != nil {
		return nil, fmt.Errorf("failed to start processing: %w", err)
	}

	s.logger.Info("scan uploaded",
		zap.String("scan_id", scan.ID.String()),
		zap.String("owner", scan.Owner),
		zap.String("content_type", scan.ContentType),
		zap.Int("bytes", len(file.Data)))

	return &models.UploadResponse{
		ID:                      scan.ID.String(),
		Status:                  string(scan.Status),
		Stage:                   string(scan.Stage),
		Progress:                scan.Progress,
		CreatedAt:               scan.CreatedAt,
		EstimatedCompletionTime: scan.EstimatedCompletionTime,
	}, nil
}

// ListParams holds raw query values; zero values take defaults.
type ListParams struct {
	Status string
	Page   int
	Limit  int
}

func (s *ScanService) List(ctx context.Context, principal auth.Principal, params ListParams) (*models.ScanListResponse, error) {
	status := models.ScanStatus(strings.ToLower(strings.TrimSpace(params.Status)))
	if status != "" && !status.Valid() {
		return nil, invalidInput("unknown status %q", params.Status)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	switch {
	case limit == 0:
		limit = DefaultPageLimit
	case limit < 1:
		limit = 1
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	filter := store.ScanFilter{Owner: principal.UserID, Status: status}

	// Pages past math.MaxInt/limit cannot hold any record.
	var (
		scans []models.Scan
		total int64
		err   error
	)
	if page-1 > math.MaxInt/limit {
		scans = []models.Scan{}
		total, err = s.scans.CountScans(ctx, filter)
	} else {
		scans, total, err = s.scans.ListScans(ctx, filter, store.Page{Offset: (page - 1) * limit, Limit: limit})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	summaries := make([]models.ScanSummary, 0, len(scans))
	for i := range scans {
		summaries = append(summaries, summarize(&scans[i]))
	}

	return &models.ScanListResponse{
		Scans:      summaries,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func summarize(scan *models.Scan) models.ScanSummary {
	summary := models.ScanSummary{
		ID:       scan.ID.String(),
		Date:     scan.CreatedAt,
		Filename: scan.Filename,
		Status:   string(scan.Status),
		Stage:    string(scan.Stage),
		Progress: scan.Progress,
	}
	if r := scan.Result; r != nil {
		detected := r.TumorDetected
		summary.TumorDetected = &detected
		summary.Location = r.Location
		summary.Size = r.Size
		if r.ThumbnailRef != "" {
			summary.ThumbnailURL = thumbnailURL(scan.ID)
		}
	}
	return summary
}

func thumbnailURL(id uuid.UUID) string     { return "/api/scans/" + id.String() + "/thumbnail" }
func heatmapURL(id uuid.UUID) string       { return "/api/scans/" + id.String() + "/heatmap" }
func visualizationURL(id uuid.UUID) string { return "/api/visualizations/" + id.String() }

// ownedScan loads a scan and hides records of other owners as not found.
func (s *ScanService) ownedScan(ctx context.Context, principal auth.Principal, scanID uuid.UUID) (*models.Scan, error) {
	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, notFound("scan %s", scanID)
		}
		return nil, err
	}
	if scan.Owner != principal.UserID {
		return nil, notFound("scan %s", scanID)
	}
	return scan, nil
}

func (s *ScanService) Details(ctx context.Context, principal auth.Principal, scanID uuid.UUID) (*models.ScanDetailsResponse, error) {
	if _, err := s.ownedScan(ctx, principal, scanID); err != nil {
		return nil, err
	}
	details, err := s.controller.GetDetails(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, notFound("scan %s", scanID)
		}
		return nil, err
	}

	scan := details.Scan
	resp := &models.ScanDetailsResponse{
		ID:                      scan.ID.String(),
		Date:                    scan.CreatedAt,
		Filename:                scan.Filename,
		Status:                  string(scan.Status),
		Stage:                   string(scan.Stage),
		Progress:                scan.Progress,
		Doctor:                  scan.Doctor,
		ErrorMessage:            scan.ErrorMessage,
		CreatedAt:               scan.CreatedAt,
		UpdatedAt:               scan.UpdatedAt,
		EstimatedCompletionTime: scan.EstimatedCompletionTime,
		EstimatedTimeRemaining:  details.EstimatedTimeRemaining,
	}
	if len(scan.Metadata) > 0 {
		var fields map[string]interface{}
		if err := json.Unmarshal(scan.Metadata, &fields); err == nil {
			resp.Metadata = fields
		}
	}
	if r := scan.Result; r != nil {
		detected := r.TumorDetected
		resp.TumorDetected = &detected
		resp.Label = r.Label
		resp.Confidence = r.Confidence
		resp.Location = r.Location
		resp.Size = r.Size
		resp.Notes = r.Notes
		if r.ThumbnailRef != "" {
			resp.ThumbnailURL = thumbnailURL(scan.ID)
		}
		if r.HeatmapRef != "" {
			resp.HeatmapURL = heatmapURL(scan.ID)
		}
	}
	if viz := details.Visualization; viz != nil {
		resp.VisualizationID = viz.ID.String()
		if viz.Status == models.VisualizationStatusCompleted {
			resp.VisualizationURL = visualizationURL(viz.ID)
		}
	}
	return resp, nil
}

func (s *ScanService) Status(ctx context.Context, principal auth.Principal, scanID uuid.UUID) (*models.StatusResponse, error) {
	if _, err := s.ownedScan(ctx, principal, scanID); err != nil {
		return nil, err
	}
	snap, err := s.controller.GetStatus(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, notFound("scan %s", scanID)
		}
		return nil, err
	}
	return &models.StatusResponse{
		ID:                     snap.Scan.ID.String(),
		Status:                 string(snap.Scan.Status),
		Stage:                  string(snap.Scan.Stage),
		Progress:               snap.Scan.Progress,
		EstimatedTimeRemaining: snap.EstimatedTimeRemaining,
		ErrorMessage:           snap.Scan.ErrorMessage,
	}, nil
}

// Artifact names the stored images served for a scan.
type Artifact string

const (
	ArtifactThumbnail Artifact = "thumbnail"
	ArtifactHeatmap   Artifact = "heatmap"
)

// ScanArtifact returns the bytes and content type of a stored scan image.
func (s *ScanService) ScanArtifact(ctx context.Context, principal auth.Principal, scanID uuid.UUID, kind Artifact) ([]byte, string, error) {
	scan, err := s.ownedScan(ctx, principal, scanID)
	if err != nil {
		return nil, "", err
	}
	if scan.Result == nil {
		return nil, "", notFound("scan %s has no %s", scanID, kind)
	}

	var ref, contentType string
	switch kind {
	case ArtifactThumbnail:
		ref, contentType = scan.Result.ThumbnailRef, "image/jpeg"
	case ArtifactHeatmap:
		ref, contentType = scan.Result.HeatmapRef, "image/png"
	default:
		return nil, "", invalidInput("unknown artifact %q", kind)
	}
	if ref == "" {
		return nil, "", notFound("scan %s has no %s", scanID, kind)
	}

	data, err := s.artifacts.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, "", notFound("scan %s has no %s", scanID, kind)
		}
		return nil, "", err
	}
	return data, contentType, nil
}
