// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Search constants
const (
	// DefaultSearchLimit is the page size used when a request does not specify one
	DefaultSearchLimit = 25

	// DefaultSimilarityThreshold is the minimum similarity score for a match
	DefaultSimilarityThreshold = 0.6

	// DefaultPage is the page returned when a request does not specify one
	DefaultPage = 1

	// MaxFetch is the number of neighbours fetched from the index in one query.
	// Pagination totals are computed within this ceiling.
	MaxFetch = 500
)

// Validation limits
const (
	// DefaultMaxImageBytes is the largest decoded image accepted by the API (5 MiB)
	DefaultMaxImageBytes = 5 * 1024 * 1024

	// DefaultMaxSearchLimit is the largest page size accepted by the API
	DefaultMaxSearchLimit = 50

	// DefaultMaxSearchPage is the largest page number accepted by the API
	DefaultMaxSearchPage = 1000

	// MaxEmbeddingDim bounds client-supplied query vectors
	MaxEmbeddingDim = 4096
)

// Embedding service constants
const (
	// DefaultEmbeddingConcurrency is the ceiling of in-flight embedding calls
	DefaultEmbeddingConcurrency = 4

	// DefaultEmbeddingTimeoutMS bounds a single embedding call
	DefaultEmbeddingTimeoutMS = 10000

	// DefaultEmbeddingModel is the DeepFace model name
	DefaultEmbeddingModel = "Facenet512"

	// DefaultDetectorBackend is the DeepFace detector backend
	DefaultDetectorBackend = "retinaface"

	// DefaultEmbeddingDim is the vector length produced by Facenet512
	DefaultEmbeddingDim = 512

	// MaxErrorBodyLength truncates upstream error bodies in messages
	MaxErrorBodyLength = 200
)

// Face detection constants
const (
	// CropPadding is added on every side of a face box, relative to its longer edge
	CropPadding = 0.4

	// CropSize is the edge length of normalized face crops in pixels
	CropSize = 256

	// CropJPEGQuality is the JPEG quality used to encode crops
	CropJPEGQuality = 90

	// DefaultMinFaceConfidence drops weak detections
	DefaultMinFaceConfidence = 0.5

	// DuplicateIoUThreshold collapses detections that overlap more than this
	DuplicateIoUThreshold = 0.6
)

// Processing constants
const (
	// DefaultIndexConcurrency is the number of files indexed in parallel
	DefaultIndexConcurrency = 4

	// MaxUploadSize is the largest request body accepted by the API (20MB)
	MaxUploadSize = 20 << 20
)
