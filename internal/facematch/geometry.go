// Package facematch provides face box geometry and label helpers shared by the
// detector, the indexer and the web handlers.
package facematch

import "image"

// BBox is a face bounding box in source image pixels.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Corners returns the box as [x1, y1, x2, y2].
func (b BBox) Corners() []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// Center returns the box centre point.
func (b BBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// BBoxFromCorners converts [x1, y1, x2, y2] to a BBox. Invalid input yields the zero box.
func BBoxFromCorners(corners []float64) BBox {
	if len(corners) != 4 {
		return BBox{}
	}
	return BBox{
		X:      corners[0],
		Y:      corners[1],
		Width:  corners[2] - corners[0],
		Height: corners[3] - corners[1],
	}
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ConvertPixelBBoxToRelative converts pixel bbox to relative (0-1) coordinates.
// Input bbox is [x1, y1, x2, y2] in pixels, output is [x1, y1, x2, y2] in relative coords.
func ConvertPixelBBoxToRelative(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] / float64(width),
		bbox[1] / float64(height),
		bbox[2] / float64(width),
		bbox[3] / float64(height),
	}
}

// SquareCrop returns the square region to cut around a face. The side is the
// longer box edge grown by padding on every side, shrunk until the square,
// still centred on the face, fits inside a width x height image.
func SquareCrop(box BBox, width, height int, padding float64) image.Rectangle {
	cx, cy := box.Center()
	w, h := float64(width), float64(height)

	size := max(box.Width, box.Height) * (1 + padding*2)
	size = min(size, cx*2, (w-cx)*2, cy*2, (h-cy)*2, w, h)
	if size <= 0 {
		return image.Rectangle{}
	}

	x0 := int(cx - size/2)
	y0 := int(cy - size/2)
	side := int(size)
	return image.Rect(x0, y0, x0+side, y0+side).Intersect(image.Rect(0, 0, width, height))
}

// Dedupe drops boxes that overlap an earlier kept box by more than threshold IoU.
// Boxes are expected in priority order; the returned indexes keep that order.
func Dedupe(boxes []BBox, threshold float64) []int {
	kept := make([]int, 0, len(boxes))
	for i, b := range boxes {
		duplicate := false
		for _, k := range kept {
			if ComputeIoU(b.Corners(), boxes[k].Corners()) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, i)
		}
	}
	return kept
}
