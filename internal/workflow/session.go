package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/search"
)

var (
	// ErrUnexpectedStep is returned when an operation is not valid in the current step.
	ErrUnexpectedStep = errors.New("operation not allowed in current step")
	// ErrUnknownFace is returned by SelectFace for an id that was not detected.
	ErrUnknownFace = errors.New("unknown face")
	// ErrSuperseded is returned when a newer operation replaced this one.
	// Its outcome was dropped and the state was not changed.
	ErrSuperseded = errors.New("operation superseded")
)

// Session drives Reduce against a detector and a searcher. Operations on one
// session may be called from multiple goroutines; state changes are
// serialised and outcomes of replaced operations are dropped.
type Session struct {
	detector  detector.Detector
	searcher  Searcher
	limit     int
	threshold float64

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithLimit sets the page size.
func WithLimit(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithThreshold sets the minimum similarity score.
func WithThreshold(threshold float64) Option {
	return func(s *Session) {
		s.threshold = threshold
	}
}

// NewSession creates a session in the initial state.
func NewSession(det detector.Detector, searcher Searcher, opts ...Option) *Session {
	s := &Session{
		detector:  det,
		searcher:  searcher,
		limit:     constants.DefaultSearchLimit,
		threshold: constants.DefaultSimilarityThreshold,
		state:     Initial(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// dispatch must be called with mu held.
func (s *Session) dispatch(ev Event) {
	s.state = Reduce(s.state, ev)
}

// begin starts a new operation: it cancels whatever is in flight and returns
// the operation's generation and context. Must be called with mu held.
func (s *Session) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	opCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.gen, opCtx, cancel
}

// current reports whether gen is still the latest operation. Must be called with mu held.
func (s *Session) current(gen uint64) bool {
	return s.gen == gen
}

// NewSearch resets the session. In-flight work is cancelled and its outcome dropped.
func (s *Session) NewSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.dispatch(Reset{})
}

// Upload detects faces in an encoded image. With exactly one face the search
// runs immediately; with several the session waits in StepSelect.
func (s *Session) Upload(ctx context.Context, data []byte) error {
	s.mu.Lock()
	if s.state.Step != StepUpload {
		step := s.state.Step
		s.mu.Unlock()
		return fmt.Errorf("%w: upload in %s", ErrUnexpectedStep, step)
	}
	gen, opCtx, cancel := s.begin(ctx)
	defer cancel()
	s.dispatch(UploadStarted{})
	s.mu.Unlock()

	img, err := detector.DecodeImage(data)
	if err != nil {
		return s.failDetection(gen, "Failed to load image", err)
	}

	fullImage := "data:" + detector.DetectMIMEType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.dispatch(FullImageLoaded{ImageData: fullImage})
	s.mu.Unlock()

	faces, err := s.detector.Detect(opCtx, img)
	if err != nil {
		return s.failDetection(gen, userMessage(err, "Failed to process image"), err)
	}

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.dispatch(DetectionSucceeded{Faces: faces})
	logging.Debugw("faces detected", "count", len(faces))
	if len(faces) != 1 {
		s.mu.Unlock()
		return nil
	}

	face := faces[0]
	s.dispatch(SearchStarted{})
	s.mu.Unlock()

	return s.runSearch(opCtx, gen, SearchRequest{
		CroppedImageData: face.Crop,
		FullImageData:    fullImage,
		Limit:            s.limit,
		Threshold:        s.threshold,
		Page:             constants.DefaultPage,
	}, face.Crop, false)
}

func (s *Session) failDetection(gen uint64, message string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return ErrSuperseded
	}
	s.dispatch(DetectionFailed{Message: message})
	return err
}

// SelectFace searches with the detected face faceID, starting at page 1.
func (s *Session) SelectFace(ctx context.Context, faceID string) error {
	s.mu.Lock()
	if s.state.Step != StepSelect && s.state.Step != StepResults {
		step := s.state.Step
		s.mu.Unlock()
		return fmt.Errorf("%w: select in %s", ErrUnexpectedStep, step)
	}
	idx := slices.IndexFunc(s.state.Faces, func(f detector.DetectedFace) bool {
		return f.ID == faceID
	})
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFace, faceID)
	}

	face := s.state.Faces[idx]
	fullImage := s.state.FullImageData
	gen, opCtx, cancel := s.begin(ctx)
	defer cancel()
	s.dispatch(FaceSelected{Face: face})
	s.dispatch(SearchStarted{})
	s.mu.Unlock()

	return s.runSearch(opCtx, gen, SearchRequest{
		CroppedImageData: face.Crop,
		FullImageData:    fullImage,
		Limit:            s.limit,
		Threshold:        s.threshold,
		Page:             constants.DefaultPage,
	}, face.Crop, false)
}

// ChangePage re-runs the similarity query for page with the embedding of the
// selected face. page is clamped to [1, max(totalPages, 1)] of the current
// results. A newer page change cancels this one.
func (s *Session) ChangePage(ctx context.Context, page int) error {
	s.mu.Lock()
	if s.state.Step != StepResults || s.state.SelectedFace == nil || s.state.QueryEmbedding == nil || s.state.Pagination == nil {
		step := s.state.Step
		s.mu.Unlock()
		return fmt.Errorf("%w: page change in %s", ErrUnexpectedStep, step)
	}
	page = search.ClampPage(page, s.state.Pagination.TotalPages)

	vector := s.state.QueryEmbedding
	gen, opCtx, cancel := s.begin(ctx)
	defer cancel()
	s.dispatch(SearchStarted{PageChange: true})
	s.mu.Unlock()

	return s.runSearch(opCtx, gen, SearchRequest{
		Embedding: vector,
		Limit:     s.limit,
		Threshold: s.threshold,
		Page:      page,
	}, "", true)
}

// runSearch performs one round trip and applies its outcome unless a newer
// operation took over in the meantime.
func (s *Session) runSearch(ctx context.Context, gen uint64, req SearchRequest, crop string, pageChange bool) error {
	start := time.Now()
	resp, err := s.searcher.Search(ctx, req)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		logging.Debugw("search failed", "page_change", pageChange, "error", err)
		s.dispatch(SearchFailed{Message: userMessage(err, "Search failed"), PageChange: pageChange})
		return err
	}

	thumbnail := resp.ThumbnailURL
	if thumbnail == "" {
		thumbnail = crop
	}
	embedding := resp.Embedding
	if embedding == nil {
		embedding = req.Embedding
	}
	s.dispatch(SearchSucceeded{
		Results:       resp.Results,
		Pagination:    resp.Pagination,
		QueryImageURL: thumbnail,
		Embedding:     embedding,
		Duration:      elapsed,
		PageChange:    pageChange,
	})
	return nil
}
