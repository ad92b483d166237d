// Package navigation clicks something that should lead off-site, follows the navigation
// whether it opened a new context or not, checks the destination origin and puts the
// session back where it was.
package navigation

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/engine/locate"
	"gitlab.com/navcheck/engine/wait"
	"gitlab.com/navcheck/engine/window"
	"gitlab.com/navcheck/navcheck"
)

// Session is the part of a driver the verifier needs
type Session interface {
	window.Session
	CurrentOrigin(ctx context.Context) (string, error)
}

// Trigger starts the navigation, usually by clicking a resolved element
type Trigger func(ctx context.Context) error

// ClickTrigger clicks an already resolved element
func ClickTrigger(clicker navcheck.Clicker, el navcheck.ElementHandle) Trigger {
	return func(ctx context.Context) error {
		return clicker.Click(ctx, el)
	}
}

// ResolveAndClick resolves spec when triggered and clicks the result. A target that
// does not resolve fails the trigger with its *navcheck.NotFoundErr.
func ResolveAndClick(resolver *locate.Resolver, clicker navcheck.Clicker, spec *navcheck.LocatorSpec, perCandidate time.Duration) Trigger {
	return func(ctx context.Context) error {
		target := resolver.Resolve(ctx, spec, perCandidate)
		if !target.Found() {
			return target.Err()
		}
		return clicker.Click(ctx, target.Element)
	}
}

// Verifier runs VerifyExternalNavigation against one driver session
type Verifier struct {
	session Session
	tracker *window.Tracker

	PollInterval   time.Duration
	// MismatchSettle ends the wait early once a wrong URL has been stable this long.
	// Zero waits out the timeout, redirect hops can be slow.
	MismatchSettle time.Duration
	RunID          string
	Scope          navcheck.ScopeService // optional, classifies the observed URL
}

// New verifier, a nil tracker gets one with default timeouts
func New(session Session, tracker *window.Tracker) *Verifier {
	if tracker == nil {
		tracker = window.New(session)
	}
	return &Verifier{
		session:        session,
		tracker:        tracker,
		PollInterval:   navcheck.DefaultPollInterval,
		MismatchSettle: navcheck.DefaultMismatchSettle,
	}
}

type observation struct {
	url    string
	origin string
}

// VerifyExternalNavigation fires trigger and verifies that the resulting navigation,
// in a new context or in place, lands on an origin containing expected within
// timeout. The verdict and any OriginMismatch or NavigationTimeout error are part of
// the outcome. timeout starts when trigger returns and also bounds detection of the
// navigation shape. The returned error is non nil only when the session could not be
// restored (*navcheck.RestoreFailedErr), the baseline snapshot failed or ctx was cancelled.
func (v *Verifier) VerifyExternalNavigation(ctx context.Context, trigger Trigger, expected string, timeout time.Duration) (*navcheck.NavigationOutcome, error) {
	if timeout <= 0 {
		timeout = navcheck.DefaultNavigationTimeout
	}
	outcome := navcheck.NewNavigationOutcome("", expected)
	outcome.RunID = v.RunID
	logger := log.Ctx(ctx).With().Str("expected", expected).Str("outcome", outcome.IDString()).Logger()
	ctx = logger.WithContext(ctx)

	sw, err := v.tracker.WithNewContextWithin(ctx, timeout, func(ctx context.Context) error {
		outcome.Enter(navcheck.StateTriggerSent)
		return trigger(ctx)
	}, func(ctx context.Context, sw *window.Switch) error {
		if sw.NewContext() {
			outcome.Shape = navcheck.ShapeNewContext
			outcome.Opened = sw.Opened
			outcome.Unexpected = sw.Unexpected
			outcome.Enter(navcheck.StateNewContextDetected)
		} else {
			outcome.Shape = navcheck.ShapeSameContext
			outcome.Enter(navcheck.StateSameContextDetected)
		}
		outcome.Enter(navcheck.StateVerifying)
		return v.verify(ctx, outcome, sw, time.Until(sw.Triggered.Add(timeout)), timeout)
	})

	if sw == nil {
		outcome.SetErr(err)
		outcome.Elapsed = time.Since(outcome.Started)
		return outcome, err
	}
	outcome.Origin = sw.Before.Focused
	outcome.StartURL = sw.Before.FocusedURL

	switch {
	case sw.ActionErr != nil:
		outcome.Verdict = navcheck.NavigationTimeout
		outcome.Enter(navcheck.StateNavigationTimeout)
		outcome.SetErr(&navcheck.NavigationTimeoutErr{
			Expected:   expected,
			Shape:      outcome.Shape,
			StartURL:   outcome.StartURL,
			Timeout:    timeout,
			Elapsed:    time.Since(outcome.Started),
			TriggerErr: sw.ActionErr,
		})
	case err != nil && ctx.Err() == nil && outcome.Verdict == navcheck.VerdictPending && !navcheck.IsFatal(err):
		// detection or switching failed before verification started
		outcome.Verdict = navcheck.NavigationTimeout
		outcome.Enter(navcheck.StateNavigationTimeout)
		outcome.SetErr(errors.Wrap(err, "following navigation"))
	}

	if len(sw.Late) > 0 {
		unexpected := make([]navcheck.ContextHandle, 0, len(outcome.Unexpected)+len(sw.Late))
		outcome.Unexpected = append(append(unexpected, outcome.Unexpected...), sw.Late...)
		navErr := &navcheck.NavigationTimeoutErr{}
		if errors.As(outcome.Err(), &navErr) {
			navErr.Late = sw.Late
			outcome.SetErr(outcome.Err())
		}
	}

	outcome.Enter(navcheck.StateRestoring)
	restoreErr := &navcheck.RestoreFailedErr{}
	if errors.As(err, &restoreErr) {
		outcome.Restore = navcheck.RestoreFailed
		outcome.Enter(navcheck.StateRestoreFailed)
		if restoreErr.Prior == nil {
			restoreErr.Prior = outcome.Err()
		}
		outcome.SetErr(restoreErr)
	} else {
		outcome.Restore = navcheck.Restored
		outcome.Enter(navcheck.StateRestored)
		err = nil
		if ctx.Err() != nil {
			err = errors.Wrap(ctx.Err(), "verifying navigation")
		}
	}

	if v.Scope != nil && outcome.ObservedURL != "" {
		outcome.Scope = v.Scope.Check(outcome.ObservedURL)
	}
	outcome.Elapsed = time.Since(outcome.Started)
	logger.Info().Str("shape", outcome.Shape.String()).Str("verdict", outcome.Verdict.String()).
		Str("restore", outcome.Restore.String()).Str("observed", outcome.ObservedURL).Dur("elapsed", outcome.Elapsed).Msg("navigation verified")
	return outcome, err
}

// verify polls the focused context until its origin matches or the time runs out, or,
// with MismatchSettle set, a wrong origin has settled. Only cancellation is returned.
func (v *Verifier) verify(ctx context.Context, outcome *navcheck.NavigationOutcome, sw *window.Switch, remaining, timeout time.Duration) error {
	poll := v.PollInterval
	if poll <= 0 {
		poll = navcheck.DefaultPollInterval
	}
	startURL := sw.Before.FocusedURL
	changed := func(u string) bool {
		if sw.NewContext() {
			return u != "" && u != "about:blank"
		}
		return u != startURL
	}

	var last observation
	var lastChange time.Time
	observe := func(ctx context.Context) (observation, bool, error) {
		u, err := v.session.CurrentURL(ctx)
		if err != nil {
			return observation{}, false, err
		}
		origin, err := v.session.CurrentOrigin(ctx)
		if err != nil {
			return observation{}, false, err
		}
		if u != last.url {
			lastChange = time.Now()
		}
		last = observation{url: u, origin: origin}
		if !changed(u) {
			return last, false, nil
		}
		if OriginMatches(origin, u, outcome.Expected) {
			return last, true, nil
		}
		return last, v.MismatchSettle > 0 && time.Since(lastChange) >= v.MismatchSettle, nil
	}

	var res wait.Result[observation]
	if remaining > 0 {
		res = wait.Await(ctx, wait.Spec{Timeout: remaining, PollInterval: poll}, observe)
	} else {
		res = observeOnce(ctx, observe)
	}

	outcome.ObservedURL = last.url
	outcome.ObservedOrigin = last.origin

	switch {
	case res.Outcome == wait.Cancelled:
		return errors.Wrap(ctx.Err(), "verifying navigation")
	case res.OK() && OriginMatches(last.origin, last.url, outcome.Expected):
		outcome.Verdict = navcheck.Verified
		outcome.Enter(navcheck.StateVerified)
	case last.url != "" && changed(last.url):
		outcome.Verdict = navcheck.OriginMismatch
		outcome.Enter(navcheck.StateOriginMismatch)
		outcome.SetErr(&navcheck.OriginMismatchErr{
			Expected:       outcome.Expected,
			ObservedURL:    last.url,
			ObservedOrigin: last.origin,
			Shape:          outcome.Shape,
		})
	default:
		outcome.Verdict = navcheck.NavigationTimeout
		outcome.Enter(navcheck.StateNavigationTimeout)
		var navErr error = &navcheck.NavigationTimeoutErr{
			Expected: outcome.Expected,
			Shape:    outcome.Shape,
			StartURL: startURL,
			Observed: last.url,
			Timeout:  timeout,
			Elapsed:  time.Since(outcome.Started),
		}
		if res.Outcome == wait.Failed {
			navErr = errors.Wrapf(navErr, "reading location: %s", res.LastErr)
		}
		outcome.SetErr(navErr)
	}
	return nil
}

// observeOnce when detection used up the whole timeout
func observeOnce(ctx context.Context, observe wait.Predicate[observation]) wait.Result[observation] {
	start := time.Now()
	res := wait.Result[observation]{Attempts: 1, Outcome: wait.TimedOut}
	if ctx.Err() != nil {
		res.Outcome = wait.Cancelled
		return res
	}
	value, done, err := observe(ctx)
	res.Value = value
	switch {
	case err == nil && done:
		res.Outcome = wait.Satisfied
	case err != nil && !navcheck.IsTransient(err):
		res.Outcome = wait.Failed
		res.LastErr = err
	default:
		res.LastErr = err
	}
	res.Elapsed = time.Since(start)
	return res
}

// OriginMatches if the host (with port) of origin, or of u when the origin is opaque,
// contains fragment, ignoring case. The scheme never takes part.
func OriginMatches(origin, u, fragment string) bool {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return false
	}
	if host := hostOf(origin); host != "" && strings.Contains(host, fragment) {
		return true
	}
	host := hostOf(u)
	return host != "" && strings.Contains(host, fragment)
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}
