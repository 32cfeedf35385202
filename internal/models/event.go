package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventScanProgress           = "scan.progress"
	EventScanCompleted          = "scan.completed"
	EventScanFailed             = "scan.failed"
	EventVisualizationProgress  = "visualization.progress"
	EventVisualizationCompleted = "visualization.completed"
	EventVisualizationFailed    = "visualization.failed"
)

// ScanEvent is a lifecycle notification for realtime subscribers.
type ScanEvent struct {
	ScanID    uuid.UUID `json:"scan_id"`
	Owner     string    `json:"owner"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func ScanProgressEvent(scan *Scan, stage Stage, progress int) ScanEvent {
	return ScanEvent{
		ScanID:   scan.ID,
		Owner:    scan.Owner,
		Kind:     EventScanProgress,
		Status:   string(ScanStatusProcessing),
		Stage:    string(stage),
		Progress: progress,
	}
}

func ScanCompletedEvent(scan *Scan) ScanEvent {
	return ScanEvent{
		ScanID:   scan.ID,
		Owner:    scan.Owner,
		Kind:     EventScanCompleted,
		Status:   string(ScanStatusCompleted),
		Stage:    string(StageCompleted),
		Progress: 100,
	}
}

func ScanFailedEvent(scan *Scan, errorMsg string) ScanEvent {
	return ScanEvent{
		ScanID:   scan.ID,
		Owner:    scan.Owner,
		Kind:     EventScanFailed,
		Status:   string(ScanStatusFailed),
		Stage:    string(scan.Stage),
		Progress: scan.Progress,
		Message:  errorMsg,
	}
}

func VisualizationProgressEvent(viz *Visualization, progress int) ScanEvent {
	return ScanEvent{
		ScanID:   viz.ScanID,
		Owner:    viz.Owner,
		Kind:     EventVisualizationProgress,
		Status:   string(VisualizationStatusProcessing),
		Progress: progress,
	}
}

func VisualizationCompletedEvent(viz *Visualization) ScanEvent {
	return ScanEvent{
		ScanID:   viz.ScanID,
		Owner:    viz.Owner,
		Kind:     EventVisualizationCompleted,
		Status:   string(VisualizationStatusCompleted),
		Progress: 100,
	}
}

func VisualizationFailedEvent(viz *Visualization, errorMsg string) ScanEvent {
	return ScanEvent{
		ScanID:  viz.ScanID,
		Owner:   viz.Owner,
		Kind:    EventVisualizationFailed,
		Status:  string(VisualizationStatusFailed),
		Message: errorMsg,
	}
}
