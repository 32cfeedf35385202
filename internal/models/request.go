package models

// VisualizeRequest is the optional JSON body of POST /scans/{id}/visualize.
// Omitted fields fall back to DefaultVisualizationParams.
type VisualizeRequest struct {
	Quality        *string `json:"quality,omitempty" example:"high"`
	HighlightTumor *bool   `json:"highlightTumor,omitempty" example:"true"`
	ColorScheme    *string `json:"colorScheme,omitempty" example:"standard"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
