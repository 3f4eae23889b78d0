// Package embedding computes face embeddings with a remote DeepFace server
// behind a bounded, time-limited gate.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-search/internal/constants"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// Representer turns an encoded image into an embedding vector.
type Representer interface {
	Represent(ctx context.Context, imageData string) ([]float32, error)
}

// DeepFaceClient calls the DeepFace /represent endpoint.
type DeepFaceClient struct {
	baseURL         string
	model           string
	detectorBackend string
	client          *http.Client
}

// NewDeepFaceClient creates a new DeepFace client
func NewDeepFaceClient(baseURL, model, detectorBackend string) *DeepFaceClient {
	if model == "" {
		model = constants.DefaultEmbeddingModel
	}
	if detectorBackend == "" {
		detectorBackend = constants.DefaultDetectorBackend
	}
	return &DeepFaceClient{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		model:           model,
		detectorBackend: detectorBackend,
		client:          &http.Client{},
	}
}

type representRequest struct {
	Img              string `json:"img"`
	ModelName        string `json:"model_name"`
	DetectorBackend  string `json:"detector_backend"`
	EnforceDetection bool   `json:"enforce_detection"`
}

// Face is one entry of a /represent response.
type Face struct {
	Embedding  []float32      `json:"embedding"`
	FacialArea map[string]any `json:"facial_area,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Represent implements Representer. Raw base64 input is sent as a JPEG data URL.
func (c *DeepFaceClient) Represent(ctx context.Context, imageData string) ([]float32, error) {
	img := imageData
	if !strings.HasPrefix(img, "data:") {
		img = dataURLPrefix + img
	}

	reqBody, err := json.Marshal(representRequest{
		Img:              img,
		ModelName:        c.model,
		DetectorBackend:  c.detectorBackend,
		EnforceDetection: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/represent", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransport,
			Message: "DeepFace request failed: " + err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransport,
			Message: "DeepFace request failed: " + err.Error(),
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	faces, err := ParseFaces(body)
	if err != nil {
		return nil, &Error{
			Kind:    KindUpstream,
			Status:  resp.StatusCode,
			Message: "DeepFace returned an invalid response: " + err.Error(),
			Err:     err,
		}
	}
	if len(faces) == 0 {
		return nil, noFaceError()
	}
	return faces[0].Embedding, nil
}

func noFaceError() *Error {
	return &Error{Kind: KindNoFaceDetected, Message: "No face detected in image"}
}

func classifyStatus(status int, body string) *Error {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "could not be detected") ||
		strings.Contains(lower, "no face") ||
		strings.Contains(lower, "no faces") {
		err := noFaceError()
		err.Status = status
		return err
	}

	truncated := body
	if len(truncated) > constants.MaxErrorBodyLength {
		truncated = truncated[:constants.MaxErrorBodyLength]
	}
	return &Error{
		Kind:    KindUpstream,
		Status:  status,
		Body:    truncated,
		Message: fmt.Sprintf("DeepFace API error %d: %s", status, truncated),
	}
}

// ParseFaces extracts the faces carrying a numeric embedding from a
// /represent response. Both {"results": [...]} and a bare array are accepted.
func ParseFaces(body []byte) ([]Face, error) {
	var entries []map[string]json.RawMessage

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	} else {
		var wrapped struct {
			Results []map[string]json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		entries = wrapped.Results
	}

	faces := make([]Face, 0, len(entries))
	for _, entry := range entries {
		var vec []float32
		if raw, ok := entry["embedding"]; !ok || json.Unmarshal(raw, &vec) != nil || len(vec) == 0 {
			continue
		}

		face := Face{Embedding: vec}
		for _, key := range []string{"facial_area", "region"} {
			if raw, ok := entry[key]; ok && json.Unmarshal(raw, &face.FacialArea) == nil && face.FacialArea != nil {
				break
			}
		}
		for _, key := range []string{"face_confidence", "confidence"} {
			if raw, ok := entry[key]; ok && json.Unmarshal(raw, &face.Confidence) == nil {
				break
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}
