// Package workflow drives one face search session: upload, detection, face
// selection, search and paging. All transition logic lives in Reduce.
package workflow

import (
	"time"

	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/search"
)

// Step is a state of the search workflow.
type Step int

const (
	StepUpload Step = iota
	StepDetecting
	StepSelect
	StepSearching
	StepResults
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepDetecting:
		return "detecting"
	case StepSelect:
		return "select"
	case StepSearching:
		return "searching"
	case StepResults:
		return "results"
	default:
		return "unknown"
	}
}

// NoFacesMessage is shown when detection finds nothing.
const NoFacesMessage = "No faces detected in the image. Please try another photo."

// State is a snapshot of a session. Reduce never mutates its input.
type State struct {
	Step           Step
	FullImageData  string
	Faces          []detector.DetectedFace
	SelectedFace   *detector.DetectedFace
	Error          string
	Results        []search.Result
	QueryImageURL  string
	QueryEmbedding []float32
	Pagination     *search.Pagination
	PageLoading    bool
	SearchDuration time.Duration
}

// Initial returns the state of a fresh session.
func Initial() State {
	return State{Step: StepUpload}
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

type (
	// Reset discards all session data.
	Reset struct{}
	// UploadStarted begins processing a new image.
	UploadStarted struct{}
	// FullImageLoaded records the uploaded image as a data URL.
	FullImageLoaded struct{ ImageData string }
	// DetectionSucceeded carries the detected faces (possibly none).
	DetectionSucceeded struct{ Faces []detector.DetectedFace }
	// DetectionFailed carries a user-facing reason.
	DetectionFailed struct{ Message string }
	// FaceSelected picks the face to search with.
	FaceSelected struct{ Face detector.DetectedFace }
	// SearchStarted marks a search or page change in flight.
	SearchStarted struct{ PageChange bool }
	// SearchSucceeded carries one page of results.
	SearchSucceeded struct {
		Results       []search.Result
		Pagination    search.Pagination
		QueryImageURL string
		Embedding     []float32
		Duration      time.Duration
		PageChange    bool
	}
	// SearchFailed carries a user-facing reason.
	SearchFailed struct {
		Message    string
		PageChange bool
	}
)

func (Reset) isEvent()              {}
func (UploadStarted) isEvent()      {}
func (FullImageLoaded) isEvent()    {}
func (DetectionSucceeded) isEvent() {}
func (DetectionFailed) isEvent()    {}
func (FaceSelected) isEvent()       {}
func (SearchStarted) isEvent()      {}
func (SearchSucceeded) isEvent()    {}
func (SearchFailed) isEvent()       {}

// Reduce returns the state that follows s after ev.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Reset:
		return Initial()

	case UploadStarted:
		next := Initial()
		next.Step = StepDetecting
		return next

	case FullImageLoaded:
		s.FullImageData = e.ImageData
		return s

	case DetectionSucceeded:
		s.Faces = e.Faces
		s.SelectedFace = nil
		switch len(e.Faces) {
		case 0:
			s.Step = StepUpload
			s.Error = NoFacesMessage
		case 1:
			// The sole face is searched right away, Select is skipped.
			face := e.Faces[0]
			s.SelectedFace = &face
			s.Step = StepSearching
			s.Error = ""
		default:
			s.Step = StepSelect
			s.Error = ""
		}
		return s

	case DetectionFailed:
		s.Step = StepUpload
		s.Error = e.Message
		return s

	case FaceSelected:
		face := e.Face
		s.SelectedFace = &face
		s.Step = StepSearching
		s.Error = ""
		return s

	case SearchStarted:
		s.Error = ""
		s.PageLoading = e.PageChange
		if !e.PageChange {
			s.Step = StepSearching
			s.SearchDuration = 0
			s.QueryEmbedding = nil
		}
		return s

	case SearchSucceeded:
		s.Error = ""
		s.Results = e.Results
		pagination := e.Pagination
		s.Pagination = &pagination
		if !e.PageChange {
			s.QueryImageURL = e.QueryImageURL
			s.QueryEmbedding = e.Embedding
		}
		s.Step = StepResults
		s.PageLoading = false
		s.SearchDuration = e.Duration
		return s

	case SearchFailed:
		s.Error = e.Message
		s.PageLoading = false
		if !e.PageChange {
			s.Step = StepSelect
		}
		return s
	}
	return s
}
