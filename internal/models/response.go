package models

import "time"

type UploadResponse struct {
	ID                      string    `json:"id"`
	Status                  string    `json:"status"`
	Stage                   string    `json:"stage"`
	Progress                int       `json:"progress"`
	CreatedAt               time.Time `json:"createdAt"`
	EstimatedCompletionTime time.Time `json:"estimatedCompletionTime"`
}

type ScanSummary struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Filename      string    `json:"filename"`
	Status        string    `json:"status"`
	Stage         string    `json:"stage"`
	Progress      int       `json:"progress"`
	TumorDetected *bool     `json:"tumorDetected,omitempty"`
	Location      string    `json:"location,omitempty"`
	Size          string    `json:"size,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
}

type ScanListResponse struct {
	Scans      []ScanSummary `json:"scans"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

type ScanDetailsResponse struct {
	ID                      string                 `json:"id"`
	Date                    time.Time              `json:"date"`
	Filename                string                 `json:"filename"`
	Status                  string                 `json:"status"`
	Stage                   string                 `json:"stage"`
	Progress                int                    `json:"progress"`
	TumorDetected           *bool                  `json:"tumorDetected,omitempty"`
	Label                   string                 `json:"label,omitempty"`
	Confidence              float64                `json:"confidence,omitempty"`
	Location                string                 `json:"location,omitempty"`
	Size                    string                 `json:"size,omitempty"`
	Notes                   string                 `json:"notes,omitempty"`
	Doctor                  string                 `json:"doctor,omitempty"`
	Metadata                map[string]interface{} `json:"metadata,omitempty"`
	VisualizationID         string                 `json:"visualizationId,omitempty"`
	VisualizationURL        string                 `json:"visualizationUrl,omitempty"`
	ThumbnailURL            string                 `json:"thumbnailUrl,omitempty"`
	HeatmapURL              string                 `json:"heatmapUrl,omitempty"`
	ErrorMessage            string                 `json:"errorMessage,omitempty"`
	CreatedAt               time.Time              `json:"createdAt"`
	UpdatedAt               time.Time              `json:"updatedAt"`
	EstimatedCompletionTime time.Time              `json:"estimatedCompletionTime"`
	EstimatedTimeRemaining  int64                  `json:"estimatedTimeRemaining"`
}

type StatusResponse struct {
	ID                     string `json:"id"`
	Status                 string `json:"status"`
	Stage                  string `json:"stage"`
	Progress               int    `json:"progress"`
	EstimatedTimeRemaining int64  `json:"estimatedTimeRemaining"`
	ErrorMessage           string `json:"errorMessage,omitempty"`
}

type VisualizeResponse struct {
	VisualizationID         string    `json:"visualizationId"`
	ScanID                  string    `json:"scanId"`
	Status                  string    `json:"status"`
	Progress                int       `json:"progress"`
	EstimatedCompletionTime time.Time `json:"estimatedCompletionTime"`
}

type StatsResponse struct {
	TotalScans      int64      `json:"totalScans"`
	ScansThisMonth  int64      `json:"scansThisMonth"`
	TumorsDetected  int64      `json:"tumorsDetected"`
	TumorPercentage int        `json:"tumorPercentage"`
	LastScanDate    *time.Time `json:"lastScanDate,omitempty"`
	LastScanDaysAgo *int       `json:"lastScanDaysAgo,omitempty"`
}

type AuthValidateResponse struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	UserID          string   `json:"userId"`
	Permissions     []string `json:"permissions"`
}

type HeatmapResponse struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence,omitempty"`
	TumorDetected bool    `json:"tumorDetected"`
	Location      string  `json:"location"`
	Heatmap       string  `json:"heatmap,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
