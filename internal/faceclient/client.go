package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FaceQuality contains face quality metrics reported by the service.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

// EnrollResult contains the face enrollment response.
type EnrollResult struct {
	MemberID string       `json:"user_id"`
	Success  bool         `json:"success"`
	Quality  *FaceQuality `json:"quality"`
	Message  string       `json:"message"`
}

// SearchMatch represents a face match from gallery search.
type SearchMatch struct {
	MemberID   string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
	Name       string  `json:"name,omitempty"`
}

// SearchResult contains 1:N search results.
type SearchResult struct {
	Matches       []SearchMatch `json:"matches"`
	FacesDetected int           `json:"faces_detected"`
	Quality       *FaceQuality  `json:"quality"`
}

// VerifyResult contains a 1:1 verification result.
type VerifyResult struct {
	MemberID   string       `json:"user_id"`
	Verified   bool         `json:"verified"`
	Similarity float64      `json:"similarity"`
	Threshold  float64      `json:"threshold"`
	Quality    *FaceQuality `json:"quality"`
}

// Client calls the face recognition micro-service. With Skip set every call
// succeeds with canned data, for kiosks without a camera pipeline.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a timeout suited to face processing.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// post sends payload as JSON and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// Enroll registers a member's face with the service for later verification.
func (c *Client) Enroll(ctx context.Context, memberID, imageURL, name string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{
			MemberID: memberID,
			Success:  true,
			Quality:  &FaceQuality{Score: 0.85, IsFrontal: true},
			Message:  "Face enrolled (mock)",
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	payload := map[string]any{
		"user_id":   memberID,
		"image_url": imageURL,
	}
	if name != "" {
		payload["name"] = name
	}
	var out EnrollResult
	if err := c.post(ctx, "/enroll", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search performs 1:N identification against the enrolled gallery.
func (c *Client) Search(ctx context.Context, imageURL string, topK int, threshold float64) (*SearchResult, error) {
	if c.Skip {
		return &SearchResult{FacesDetected: 1, Quality: &FaceQuality{Score: 0.85, IsFrontal: true}}, nil
	}

	payload := map[string]any{
		"image_url": imageURL,
		"top_k":     topK,
	}
	if threshold > 0 {
		payload["threshold"] = threshold
	}
	var out SearchResult
	if err := c.post(ctx, "/search", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify performs 1:1 verification against a specific enrolled member.
func (c *Client) Verify(ctx context.Context, memberID, imageURL string) (*VerifyResult, error) {
	if c.Skip {
		return &VerifyResult{
			MemberID:   memberID,
			Verified:   true,
			Similarity: 0.92,
			Threshold:  0.45,
			Quality:    &FaceQuality{Score: 0.85, IsFrontal: true},
		}, nil
	}

	var out VerifyResult
	if err := c.post(ctx, "/verify", map[string]string{"user_id": memberID, "image_url": imageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
