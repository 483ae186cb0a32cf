package classify

import "fmt"

// OutcomeKind is the coarse verdict of one attempt.
type OutcomeKind string

const (
	KindSuccess OutcomeKind = "success"
	KindBlocked OutcomeKind = "blocked"
	KindError   OutcomeKind = "error"
)

// Outcome is the result of one fetch attempt. It is implemented only by
// Success, Blocked and TransportError.
type Outcome interface {
	Kind() OutcomeKind
	// Message is a short human-readable description for reports and logs.
	Message() string
	sealed()
}

// Success means the fetched page passed the classifier.
type Success struct {
	Content string
	Signals Signals
}

// Blocked means content arrived but the classifier rejected it.
type Blocked struct {
	Reason  Reason
	Signals Signals
}

// ErrorClass categorises transport failures.
type ErrorClass string

const (
	ErrTimeout        ErrorClass = "timeout"
	ErrNetwork        ErrorClass = "network"
	ErrUpstreamStatus ErrorClass = "upstream_status"
	ErrBrowser        ErrorClass = "browser"
	ErrConfig         ErrorClass = "config"
)

// TransportError means no usable content was obtained.
type TransportError struct {
	Class ErrorClass
	Err   error
}

// Reason names the first classification rule a page failed.
type Reason string

const (
	ReasonChallenge     Reason = "challenge"
	ReasonBlockPage     Reason = "block_page"
	ReasonTooSmall      Reason = "too_small"
	ReasonMissingMarker Reason = "missing_marker"
	ReasonRouteMismatch Reason = "route_mismatch"
)

func (Success) Kind() OutcomeKind        { return KindSuccess }
func (Blocked) Kind() OutcomeKind        { return KindBlocked }
func (TransportError) Kind() OutcomeKind { return KindError }

func (Success) sealed()        {}
func (Blocked) sealed()        {}
func (TransportError) sealed() {}

func (s Success) Message() string {
	return fmt.Sprintf("ok (%d bytes)", s.Signals.ContentBytes)
}

func (b Blocked) Message() string {
	switch b.Reason {
	case ReasonChallenge:
		return fmt.Sprintf("challenge page (markers: %v)", b.Signals.ChallengeMarkers)
	case ReasonBlockPage:
		return fmt.Sprintf("block page (markers: %v)", b.Signals.BlockMarkers)
	case ReasonTooSmall:
		return fmt.Sprintf("content too small (%d bytes)", b.Signals.ContentBytes)
	case ReasonMissingMarker:
		return "site marker missing"
	case ReasonRouteMismatch:
		return "unexpected route"
	default:
		return string(b.Reason)
	}
}

func (e TransportError) Message() string {
	if e.Err == nil {
		return string(e.Class)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Error lets a TransportError travel as a Go error.
func (e TransportError) Error() string { return e.Message() }

func (e TransportError) Unwrap() error { return e.Err }
