package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ScanStatus string

const (
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusProcessing, ScanStatusCompleted, ScanStatusFailed:
		return true
	}
	return false
}

func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

type Stage string

const (
	StageQueued          Stage = "queued"
	StageUploading       Stage = "uploading"
	StageProcessing      Stage = "processing"
	StageBuilding3DModel Stage = "building_3d_model"
	StageCompleted       Stage = "completed"
)

var stageOrder = map[Stage]int{
	StageQueued:          0,
	StageUploading:       1,
	StageProcessing:      2,
	StageBuilding3DModel: 3,
	StageCompleted:       4,
}

// Rank returns the position of the stage in the processing order, or -1.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// Scan is one uploaded brain image and its processing lifecycle.
type Scan struct {
	ID                      uuid.UUID       `json:"id"`
	Owner                   string          `json:"owner,omitempty"`
	Filename                string          `json:"filename"`
	ContentType             string          `json:"contentType"`
	Metadata                json.RawMessage `json:"metadata,omitempty"`
	Doctor                  string          `json:"doctor,omitempty"`
	Status                  ScanStatus      `json:"status"`
	Stage                   Stage           `json:"stage"`
	Progress                int             `json:"progress"`
	SourceImageRef          string          `json:"sourceImageRef"`
	Result                  *ScanResult     `json:"result,omitempty"`
	VisualizationID         *uuid.UUID      `json:"visualizationId,omitempty"`
	ErrorMessage            string          `json:"errorMessage,omitempty"`
	Claimed                 bool            `json:"-"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
	EstimatedCompletionTime time.Time       `json:"estimatedCompletionTime"`
}

// ScanResult is written once, when the scan completes.
type ScanResult struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence,omitempty"`
	TumorDetected bool    `json:"tumorDetected"`
	Location      string  `json:"location"`
	Size          string  `json:"size"`
	Notes         string  `json:"notes"`
	ThumbnailRef  string  `json:"thumbnailRef,omitempty"`
	HeatmapRef    string  `json:"heatmapRef,omitempty"`
}

type VisualizationStatus string

const (
	VisualizationStatusProcessing VisualizationStatus = "processing"
	VisualizationStatusCompleted  VisualizationStatus = "completed"
	VisualizationStatusFailed     VisualizationStatus = "failed"
)

type VisualizationParams struct {
	Quality        string `json:"quality"`
	HighlightTumor bool   `json:"highlightTumor"`
	ColorScheme    string `json:"colorScheme"`
}

// DefaultVisualizationParams mirrors the viewer defaults of the web client.
func DefaultVisualizationParams() VisualizationParams {
	return VisualizationParams{
		Quality:        "high",
		HighlightTumor: true,
		ColorScheme:    "standard",
	}
}

type Visualization struct {
	ID           uuid.UUID           `json:"id"`
	ScanID       uuid.UUID           `json:"scanId"`
	Owner        string              `json:"owner,omitempty"`
	Status       VisualizationStatus `json:"status"`
	Progress     int                 `json:"progress"`
	Params       VisualizationParams `json:"params"`
	HTMLRef      string              `json:"htmlRef,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}
