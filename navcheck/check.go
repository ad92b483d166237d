package navcheck

import "time"

// CheckStatus of a single configured check
type CheckStatus int8

// revive:exported
const (
	CheckPassed CheckStatus = iota + 1
	CheckFailed
	CheckSkipped
	CheckAborted
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPassed:
		return "PASS"
	case CheckFailed:
		return "FAIL"
	case CheckSkipped:
		return "SKIP"
	case CheckAborted:
		return "ABORT"
	}
	return "?"
}

// CheckResult of running one check
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Target   *ResolvedTarget
	Outcome  *NavigationOutcome // nil for presence-only checks
	Err      error
	Duration time.Duration
}

// Reporter collects check results
type Reporter interface {
	Add(result *CheckResult)
	Results() []*CheckResult
}

// OutcomeStore persists navigation outcomes
type OutcomeStore interface {
	Init() error
	AddOutcome(outcome *NavigationOutcome) error
	Close() error
}
