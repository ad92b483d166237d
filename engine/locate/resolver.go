// Package locate resolves a logical UI target to an element by trying its candidate
// selectors in priority order.
package locate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/engine/wait"
	"gitlab.com/navcheck/navcheck"
)

// Resolver walks LocatorSpecs against a driver
type Resolver struct {
	querier navcheck.ElementQuerier
	poll    time.Duration
}

// New resolver, poll <= 0 uses the default poll interval
func New(querier navcheck.ElementQuerier, poll time.Duration) *Resolver {
	if poll <= 0 {
		poll = navcheck.DefaultPollInterval
	}
	return &Resolver{querier: querier, poll: poll}
}

// Resolve returns the first visible and interactable element matched by the earliest
// candidate of spec. Each candidate is polled for at most perCandidate. Failure is
// reported in the returned target, see ResolvedTarget.Err.
func (r *Resolver) Resolve(ctx context.Context, spec *navcheck.LocatorSpec, perCandidate time.Duration) *navcheck.ResolvedTarget {
	return r.resolve(ctx, spec, perCandidate, true)
}

// ResolvePresent is Resolve without the visibility requirement, for probing whether an
// optional feature exists on the page at all.
func (r *Resolver) ResolvePresent(ctx context.Context, spec *navcheck.LocatorSpec, perCandidate time.Duration) *navcheck.ResolvedTarget {
	return r.resolve(ctx, spec, perCandidate, false)
}

func (r *Resolver) resolve(ctx context.Context, spec *navcheck.LocatorSpec, perCandidate time.Duration, interactable bool) *navcheck.ResolvedTarget {
	if perCandidate <= 0 {
		perCandidate = navcheck.DefaultCandidateTimeout
	}
	start := time.Now()
	logger := log.Ctx(ctx).With().Str("target", spec.Name()).Logger()

	target := &navcheck.ResolvedTarget{
		Spec:     spec,
		Index:    -1,
		Attempts: make([]navcheck.CandidateAttempt, spec.Len()),
	}
	for i := 0; i < spec.Len(); i++ {
		target.Attempts[i].Candidate = spec.Candidate(i)
	}

	bounds := wait.Spec{Timeout: perCandidate, PollInterval: r.poll}
	for i := range target.Attempts {
		if ctx.Err() != nil {
			target.Cancelled = true
			break
		}
		sel := target.Attempts[i].Candidate
		res := wait.Await(ctx, bounds, func(ctx context.Context) (navcheck.ElementHandle, bool, error) {
			return r.first(ctx, sel, interactable)
		})

		attempt := &target.Attempts[i]
		attempt.Attempted = true
		attempt.Polls = res.Attempts
		attempt.Elapsed = res.Elapsed
		attempt.LastErr = res.LastErr

		switch res.Outcome {
		case wait.Satisfied:
			target.Element = res.Value
			target.Candidate = sel
			target.Index = i
			target.Elapsed = time.Since(start)
			logger.Debug().Str("candidate", sel.String()).Int("index", i).Dur("elapsed", target.Elapsed).Msg("resolved")
			return target
		case wait.Cancelled:
			target.Cancelled = true
		case wait.Failed:
			logger.Warn().Err(res.LastErr).Str("candidate", sel.String()).Msg("candidate failed, trying next")
		default:
			logger.Debug().Str("candidate", sel.String()).Int("polls", res.Attempts).Msg("candidate timed out")
		}
		if target.Cancelled {
			break
		}
	}
	target.Elapsed = time.Since(start)
	logger.Debug().Dur("elapsed", target.Elapsed).Bool("cancelled", target.Cancelled).Msg("unable to resolve")
	return target
}

// first match of sel in document order that qualifies. Elements that went stale
// between the query and the check are skipped; if nothing qualified the last such
// error is returned so the wait keeps polling.
func (r *Resolver) first(ctx context.Context, sel navcheck.Selector, interactable bool) (navcheck.ElementHandle, bool, error) {
	elements, err := r.querier.FindCandidates(ctx, sel)
	if err != nil {
		return nil, false, err
	}
	if !interactable {
		if len(elements) > 0 {
			return elements[0], true, nil
		}
		return nil, false, nil
	}

	var transient error
	for _, el := range elements {
		ok, err := r.usable(ctx, el)
		if err != nil {
			if navcheck.IsTransient(err) {
				transient = err
				continue
			}
			return nil, false, err
		}
		if ok {
			return el, true, nil
		}
	}
	return nil, false, transient
}

func (r *Resolver) usable(ctx context.Context, el navcheck.ElementHandle) (bool, error) {
	visible, err := r.querier.IsVisible(ctx, el)
	if err != nil || !visible {
		return false, err
	}
	return r.querier.IsInteractable(ctx, el)
}
