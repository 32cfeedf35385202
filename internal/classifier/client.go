// Package classifier talks to the tumor classification model server.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	LabelNoTumor    = "notumor"
	LabelGlioma     = "glioma"
	LabelMeningioma = "meningioma"
	LabelPituitary  = "pituitary"
)

var knownLabels = map[string]bool{
	LabelNoTumor:    true,
	LabelGlioma:     true,
	LabelMeningioma: true,
	LabelPituitary:  true,
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// classifyResponse is the model server reply. Heatmap is a base64 PNG overlay.
type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Region     string  `json:"region"`
	Size       string  `json:"size"`
	Heatmap    string  `json:"heatmap"`
}

type Classification struct {
	Label      string
	Confidence float64
	Region     string
	Size       string
	// Heatmap holds PNG bytes, or nil when the server returned none.
	Heatmap []byte
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Classify uploads one image to POST {baseURL}/classify.
func (c *Client) Classify(ctx context.Context, filename string, image []byte) (*Classification, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result classifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	label := strings.ToLower(strings.TrimSpace(result.Label))
	if !knownLabels[label] {
		return nil, fmt.Errorf("unknown classification label %q", result.Label)
	}

	out := &Classification{
		Label:      label,
		Confidence: result.Confidence,
		Region:     strings.TrimSpace(result.Region),
		Size:       strings.TrimSpace(result.Size),
	}
	if result.Heatmap != "" {
		encoded := result.Heatmap
		if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
			encoded = encoded[i+1:]
		}
		heatmap, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode heatmap: %w", err)
		}
		out.Heatmap = heatmap
	}
	return out, nil
}
