package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// faceDetection is a single face reported by the detection server.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// RemoteDetector locates faces with the embedding server's face endpoint and
// crops them locally.
type RemoteDetector struct {
	baseURL       string
	minConfidence float64
	client        *http.Client
	ready         atomic.Bool
}

// NewRemoteDetector creates a detector for the server at baseURL.
func NewRemoteDetector(baseURL string, minConfidence float64) *RemoteDetector {
	return &RemoteDetector{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		minConfidence: minConfidence,
		client:        &http.Client{},
	}
}

// Init checks that the detection server is up. Detect fails with
// ErrModelNotReady until Init succeeded once.
func (d *RemoteDetector) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("detection server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection server not ready (status %d)", resp.StatusCode)
	}
	d.ready.Store(true)
	return nil
}

// Detect implements Detector.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]DetectedFace, error) {
	if !d.ready.Load() {
		return nil, ErrModelNotReady
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	body, err := d.postMultipartImage(ctx, "/embed/face", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	regions := make([]Region, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		regions = append(regions, Region{
			BBox:       facematch.BBoxFromCorners(f.BBox),
			Confidence: f.DetScore,
		})
	}

	return BuildFaces(img, regions, d.minConfidence)
}

// postMultipartImage posts the image as the "file" form field with an explicit
// Content-Type based on magic byte detection.
func (d *RemoteDetector) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
