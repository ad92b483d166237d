package navcheck

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Shape is how the navigation manifested
type Shape int8

const (
	// ShapeUnknown navigation was never classified (trigger failed)
	ShapeUnknown Shape = iota
	// ShapeNewContext a new tab/window opened
	ShapeNewContext
	// ShapeSameContext the focused context navigated in place (or nothing happened)
	ShapeSameContext
)

func (s Shape) String() string {
	switch s {
	case ShapeNewContext:
		return "new-context"
	case ShapeSameContext:
		return "same-context"
	}
	return "unknown"
}

// Verdict of verifying the destination
type Verdict int8

// revive:exported
const (
	VerdictPending Verdict = iota
	Verified
	OriginMismatch
	NavigationTimeout
)

func (v Verdict) String() string {
	switch v {
	case Verified:
		return "Verified"
	case OriginMismatch:
		return "OriginMismatch"
	case NavigationTimeout:
		return "NavigationTimeout"
	}
	return "Pending"
}

// RestoreState of the session after verification
type RestoreState int8

// revive:exported
const (
	RestorePending RestoreState = iota
	Restored
	RestoreFailed
)

func (r RestoreState) String() string {
	switch r {
	case Restored:
		return "Restored"
	case RestoreFailed:
		return "RestoreFailed"
	}
	return "Pending"
}

// State of a single verification
type State int8

// revive:exported
const (
	StateIdle State = iota + 1
	StateTriggerSent
	StateNewContextDetected
	StateSameContextDetected
	StateVerifying
	StateVerified
	StateOriginMismatch
	StateNavigationTimeout
	StateRestoring
	StateRestored
	StateRestoreFailed
)

var stateMap = map[State]string{
	StateIdle:                "Idle",
	StateTriggerSent:         "TriggerSent",
	StateNewContextDetected:  "NewContextDetected",
	StateSameContextDetected: "SameContextDetected",
	StateVerifying:           "Verifying",
	StateVerified:            "Verified",
	StateOriginMismatch:      "OriginMismatch",
	StateNavigationTimeout:   "NavigationTimeout",
	StateRestoring:           "Restoring",
	StateRestored:            "Restored",
	StateRestoreFailed:       "RestoreFailed",
}

func (s State) String() string {
	if v, ok := stateMap[s]; ok {
		return v
	}
	return "Unknown"
}

// NavigationOutcome of one VerifyExternalNavigation call. graph tags name the
// predicates the store persists.
type NavigationOutcome struct {
	ID             []byte          `graph:"id"`
	RunID          string          `graph:"run"`
	Label          string          `graph:"label"`
	Expected       string          `graph:"expected"`
	Shape          Shape           `graph:"shape"`
	Verdict        Verdict         `graph:"verdict"`
	Restore        RestoreState    `graph:"restore"`
	StartURL       string          `graph:"start_url"`
	ObservedURL    string          `graph:"observed_url"`
	ObservedOrigin string          `graph:"observed_origin"`
	Origin         ContextHandle   `graph:"origin_ctx"`
	Opened         ContextHandle   `graph:"opened_ctx"`
	Unexpected     []ContextHandle `graph:"unexpected"`
	Trail          []State         `graph:"trail"`
	Scope          Scope           `graph:"scope"`
	Started        time.Time       `graph:"started"`
	Elapsed        time.Duration   `graph:"elapsed"`
	Diagnostic     string          `graph:"diag"`

	err error
}

// NewNavigationOutcome in the Idle state
func NewNavigationOutcome(label, expected string) *NavigationOutcome {
	id := uuid.NewV4()
	return &NavigationOutcome{
		ID:       id.Bytes(),
		Label:    label,
		Expected: expected,
		Started:  time.Now(),
		Trail:    []State{StateIdle},
	}
}

// Enter appends a state to the trail
func (o *NavigationOutcome) Enter(s State) {
	o.Trail = append(o.Trail, s)
}

// Last state entered
func (o *NavigationOutcome) Last() State {
	if len(o.Trail) == 0 {
		return 0
	}
	return o.Trail[len(o.Trail)-1]
}

// SetErr records the verification failure and its diagnostic
func (o *NavigationOutcome) SetErr(err error) {
	o.err = err
	if err != nil {
		o.Diagnostic = err.Error()
	}
}

// Err returns the verification failure (*OriginMismatchErr, *NavigationTimeoutErr,
// *RestoreFailedErr) or nil when verified and restored.
func (o *NavigationOutcome) Err() error {
	return o.err
}

// Passed when verified and restored
func (o *NavigationOutcome) Passed() bool {
	return o.Verdict == Verified && o.Restore == Restored
}

// IDString of the outcome
func (o *NavigationOutcome) IDString() string {
	id, err := uuid.FromBytes(o.ID)
	if err != nil {
		return fmt.Sprintf("%x", o.ID)
	}
	return id.String()
}

func (o *NavigationOutcome) String() string {
	return fmt.Sprintf("%s %q expect=%q %s %s/%s observed=%q in %s",
		o.IDString(), o.Label, o.Expected, o.Shape, o.Verdict, o.Restore, o.ObservedURL, o.Elapsed)
}
