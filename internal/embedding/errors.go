package embedding

import "errors"

// Kind classifies embedding failures.
type Kind int

const (
	KindNoFaceDetected Kind = iota + 1
	KindTimeout
	KindUpstream
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNoFaceDetected:
		return "no_face_detected"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream_error"
	case KindTransport:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Error is returned for every failed embedding call.
type Error struct {
	Kind    Kind
	Status  int    // upstream HTTP status, KindUpstream only
	Body    string // truncated upstream body, KindUpstream only
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var embErr *Error
	if errors.As(err, &embErr) {
		return embErr.Kind, true
	}
	return 0, false
}
