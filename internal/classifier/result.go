package classifier

import (
	"fmt"
	"strings"

	"neurosphere-backend/internal/models"
)

const unknown = "Unknown"

func (c *Classification) TumorDetected() bool {
	return c.Label != LabelNoTumor
}

// Location names the affected region: "None" without a tumor, "Pituitary" for
// pituitary tumors, otherwise the model's lobe region.
func (c *Classification) Location() string {
	switch c.Label {
	case LabelNoTumor:
		return "None"
	case LabelPituitary:
		return "Pituitary"
	}
	if c.Region == "" {
		return unknown
	}
	region := strings.ToUpper(c.Region[:1]) + strings.ToLower(c.Region[1:])
	if strings.HasSuffix(strings.ToLower(region), " lobe") {
		return region
	}
	return region + " lobe"
}

func (c *Classification) Notes() string {
	if !c.TumorDetected() {
		return "No tumor detected."
	}
	loc := c.Location()
	if loc == unknown {
		return fmt.Sprintf("%s detected. Recommended for additional clinical evaluation.", strings.ToUpper(c.Label[:1])+c.Label[1:])
	}
	return fmt.Sprintf("Tumor detected in the %s region. Recommended for additional clinical evaluation.", strings.ToLower(loc))
}

// Result builds the stored scan result. Artifact refs are filled in by the caller.
func (c *Classification) Result() models.ScanResult {
	size := c.Size
	if size == "" {
		size = unknown
	}
	return models.ScanResult{
		Label:         c.Label,
		Confidence:    c.Confidence,
		TumorDetected: c.TumorDetected(),
		Location:      c.Location(),
		Size:          size,
		Notes:         c.Notes(),
	}
}
