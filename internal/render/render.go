// Package render produces the self-contained 3D viewer page for a scan.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"neurosphere-backend/internal/models"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var qualitySegments = map[string]int{
	"low":    16,
	"medium": 32,
	"high":   64,
}

type Palette struct {
	Background string
	Brain      string
	Tumor      string
}

var palettes = map[string]Palette{
	"standard":  {Background: "#0b1020", Brain: "#d8b4a0", Tumor: "#e53e3e"},
	"thermal":   {Background: "#000000", Brain: "#2b6cb0", Tumor: "#f6e05e"},
	"grayscale": {Background: "#111111", Brain: "#a0aec0", Tumor: "#ffffff"},
}

// Approximate viewer coordinates for each reported location.
var tumorPositions = map[string][]float64{
	"frontal lobe":   {0, 0.3, 0.85},
	"parietal lobe":  {0, 0.6, -0.2},
	"temporal lobe":  {0.75, -0.1, 0.2},
	"occipital lobe": {0, 0.2, -0.95},
	"pituitary":      {0, -0.35, 0.15},
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/visualization.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse visualization template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type pageData struct {
	VisualizationID string
	ScanID          string
	TumorDetected   bool
	Label           string
	Location        string
	Segments        int
	Highlight       bool
	TumorPosition   []float64
	Palette         Palette
}

// ValidQuality reports whether q is one of low, medium or high.
func ValidQuality(q string) bool {
	_, ok := qualitySegments[q]
	return ok
}

// Render builds the viewer page. The scan must carry a result.
func (r *Renderer) Render(viz *models.Visualization, scan *models.Scan) ([]byte, error) {
	if scan.Result == nil {
		return nil, fmt.Errorf("scan %s has no result to visualize", scan.ID)
	}

	segments, ok := qualitySegments[viz.Params.Quality]
	if !ok {
		return nil, fmt.Errorf("unknown visualization quality %q", viz.Params.Quality)
	}
	palette, ok := palettes[strings.ToLower(viz.Params.ColorScheme)]
	if !ok {
		palette = palettes["standard"]
	}

	data := pageData{
		VisualizationID: viz.ID.String(),
		ScanID:          scan.ID.String(),
		TumorDetected:   scan.Result.TumorDetected,
		Label:           scan.Result.Label,
		Location:        scan.Result.Location,
		Segments:        segments,
		Highlight:       viz.Params.HighlightTumor && scan.Result.TumorDetected,
		Palette:         palette,
	}
	if data.Highlight {
		data.TumorPosition = tumorPositions[strings.ToLower(scan.Result.Location)]
		if data.TumorPosition == nil {
			data.TumorPosition = []float64{0, 0, 0}
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render visualization: %w", err)
	}
	return buf.Bytes(), nil
}
