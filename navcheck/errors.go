package navcheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// revive:exported
var (
	ErrEmptyLocator     = errors.New("locator spec requires at least one candidate")
	ErrInvalidSelector  = errors.New("invalid selector")
	ErrStaleElement     = errors.New("element is stale or detached from the document")
	ErrNotReady         = errors.New("not ready")
	ErrContextClosed    = errors.New("browsing context is closed")
	ErrNoFocusedContext = errors.New("no focused browsing context")
	ErrUnknownDriver    = errors.New("unknown driver")
	ErrUnknownContext   = errors.New("unknown browsing context")
)

// IsTransient reports errors that mean "poll again" rather than failure: the DOM
// legitimately changes between polls.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStaleElement) || errors.Is(err, ErrNotReady)
}

// IsFatal reports errors after which the session can no longer be trusted
func IsFatal(err error) bool {
	var restore *RestoreFailedErr
	return errors.As(err, &restore)
}

// NotFoundErr when no candidate of a LocatorSpec resolved
type NotFoundErr struct {
	Spec      *LocatorSpec
	Attempts  []CandidateAttempt
	Elapsed   time.Duration
	Cancelled bool
}

func (e *NotFoundErr) Error() string {
	name := "<nil>"
	if e.Spec != nil {
		name = e.Spec.Name()
	}
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if !a.Attempted {
			tried = append(tried, a.Candidate.String()+" (not attempted)")
			continue
		}
		s := fmt.Sprintf("%s (%d polls", a.Candidate, a.Polls)
		if a.LastErr != nil {
			s += ", last error: " + a.LastErr.Error()
		}
		tried = append(tried, s+")")
	}
	msg := fmt.Sprintf("unable to resolve %s after %s, tried: %s", name, e.Elapsed, strings.Join(tried, "; "))
	if e.Cancelled {
		msg += " (cancelled)"
	}
	return msg
}

// TimeoutErr when a wait did not succeed before its deadline
type TimeoutErr struct {
	Message  string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *TimeoutErr) Error() string {
	msg := fmt.Sprintf("timed out %s after %s (%d attempts)", e.Message, e.Elapsed, e.Attempts)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutErr) Unwrap() error {
	return e.LastErr
}

// NavigationTimeoutErr when no URL change was observed within the timeout. Usually the
// trigger was not actually clickable.
type NavigationTimeoutErr struct {
	Expected   string
	Shape      Shape
	StartURL   string
	Observed   string
	Timeout    time.Duration
	Elapsed    time.Duration
	TriggerErr error
	Late       []ContextHandle // contexts that opened too late to be followed
}

func (e *NavigationTimeoutErr) Error() string {
	if e.TriggerErr != nil {
		return fmt.Sprintf("navigation to %q never started: trigger failed: %s", e.Expected, e.TriggerErr)
	}
	msg := fmt.Sprintf("no navigation to %q observed within %s (%s, start %q, observed %q)",
		e.Expected, e.Timeout, e.Shape, e.StartURL, e.Observed)
	if len(e.Late) > 0 {
		late := make([]string, len(e.Late))
		for i, h := range e.Late {
			late[i] = string(h)
		}
		msg += "; contexts opened after detection ended: " + strings.Join(late, ", ")
	}
	return msg
}

func (e *NavigationTimeoutErr) Unwrap() error {
	return e.TriggerErr
}

// OriginMismatchErr when navigation happened, but to the wrong origin
type OriginMismatchErr struct {
	Expected       string
	ObservedURL    string
	ObservedOrigin string
	Shape          Shape
}

func (e *OriginMismatchErr) Error() string {
	return fmt.Sprintf("expected origin containing %q but navigated to %q (origin %q, %s)",
		e.Expected, e.ObservedURL, e.ObservedOrigin, e.Shape)
}

// RestoreFailedErr when focus or location could not be returned to the baseline. Fatal:
// every later step assumes a known context.
type RestoreFailedErr struct {
	Context ContextHandle
	URL     string
	Cause   error
	Prior   error // error returned by the verification callback, if any
}

func (e *RestoreFailedErr) Error() string {
	msg := fmt.Sprintf("failed to restore context %s", e.Context)
	if e.URL != "" {
		msg += " at " + e.URL
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Prior != nil {
		msg += " (while handling: " + e.Prior.Error() + ")"
	}
	return msg
}

func (e *RestoreFailedErr) Unwrap() error {
	return e.Cause
}
