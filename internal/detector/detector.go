// Package detector finds faces in an image and produces normalized square crops.
package detector

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"slices"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// ErrModelNotReady is returned by Detect before the detector was initialized.
var ErrModelNotReady = errors.New("face detection models not loaded")

// DataURLPrefix is prepended to base64 JPEG crops.
const DataURLPrefix = "data:image/jpeg;base64,"

// DetectedFace is one face found in an uploaded image.
type DetectedFace struct {
	ID         string         `json:"id"`
	BBox       facematch.BBox `json:"bbox"`
	Confidence float64        `json:"confidence"`
	Crop       string         `json:"imageData"` // JPEG data URL
}

// Detector finds faces in a decoded image. An image without faces yields an
// empty slice and no error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]DetectedFace, error)
}

// Region is a raw detection before cropping.
type Region struct {
	BBox       facematch.BBox
	Confidence float64
}

// DecodeImage decodes JPEG, PNG, GIF, BMP or WebP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// BuildFaces filters weak and duplicate regions and crops the rest.
// Ids are assigned in detection order after filtering: face-0, face-1, ...
func BuildFaces(img image.Image, regions []Region, minConfidence float64) ([]DetectedFace, error) {
	kept := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Confidence >= minConfidence && r.BBox.Width > 0 && r.BBox.Height > 0 {
			kept = append(kept, r)
		}
	}
	kept = dropOverlapping(kept)

	faces := make([]DetectedFace, 0, len(kept))
	for i, r := range kept {
		crop, err := CropFace(img, r.BBox)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, DetectedFace{
			ID:         fmt.Sprintf("face-%d", i),
			BBox:       r.BBox,
			Confidence: r.Confidence,
			Crop:       crop,
		})
	}
	return faces, nil
}

// dropOverlapping collapses overlapping regions to the most confident one
// while keeping the original detection order of the survivors.
func dropOverlapping(regions []Region) []Region {
	order := make([]int, len(regions))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(regions[b].Confidence, regions[a].Confidence)
	})

	boxes := make([]facematch.BBox, len(order))
	for i, idx := range order {
		boxes[i] = regions[idx].BBox
	}
	keep := make([]bool, len(regions))
	for _, k := range facematch.Dedupe(boxes, constants.DuplicateIoUThreshold) {
		keep[order[k]] = true
	}

	out := make([]Region, 0, len(regions))
	for i, r := range regions {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}

// CropFace cuts the padded square around box, resamples it to CropSize and
// returns it as a JPEG data URL.
func CropFace(img image.Image, box facematch.BBox) (string, error) {
	bounds := img.Bounds()
	rect := facematch.SquareCrop(box, bounds.Dx(), bounds.Dy(), constants.CropPadding)
	if rect.Empty() {
		return "", fmt.Errorf("face box %v lies outside the image", box)
	}
	rect = rect.Add(bounds.Min)

	dst := image.NewRGBA(image.Rect(0, 0, constants.CropSize, constants.CropSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: constants.CropJPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode crop: %w", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
