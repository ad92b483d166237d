// Package window tracks browsing contexts around an action that may open new ones and
// always hands focus back to where it started.
package window

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/engine/wait"
	"gitlab.com/navcheck/navcheck"
)

const maxBacks = 5

// Session is the part of a driver the tracker needs
type Session interface {
	navcheck.ContextSwitcher
	NavigateBack(ctx context.Context) error
}

// Action performed between the two snapshots, usually a click
type Action func(ctx context.Context) error

// OnOpened runs with focus on the new context, or in place when none opened
type OnOpened func(ctx context.Context, sw *Switch) error

// Switch describes one WithNewContext run
type Switch struct {
	Before     *navcheck.ContextSet
	After      *navcheck.ContextSet
	Delta      navcheck.ContextDelta
	Opened     navcheck.ContextHandle // "" when nothing opened
	Unexpected []navcheck.ContextHandle
	Late       []navcheck.ContextHandle // opened after detection ended, closed by restore
	Triggered  time.Time                // when action returned
	ActionErr  error
}

// NewContext if the action opened a context
func (s *Switch) NewContext() bool {
	return s != nil && s.Opened != ""
}

// Tracker owns focus switching for one driver session
type Tracker struct {
	session Session

	DetectTimeout  time.Duration
	RestoreTimeout time.Duration
	PollInterval   time.Duration
}

// New tracker with default timeouts
func New(session Session) *Tracker {
	return &Tracker{
		session:        session,
		DetectTimeout:  navcheck.DefaultDetectTimeout,
		RestoreTimeout: navcheck.DefaultRestoreTimeout,
		PollInterval:   navcheck.DefaultPollInterval,
	}
}

// Snapshot the open contexts, the focused one and its URL
func (t *Tracker) Snapshot(ctx context.Context) (*navcheck.ContextSet, error) {
	handles, err := t.session.ListContexts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing contexts")
	}
	focused, err := t.session.FocusedContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting focused context")
	}
	u, err := t.session.CurrentURL(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting focused url")
	}
	return &navcheck.ContextSet{Handles: handles, Focused: focused, FocusedURL: u, TakenAt: time.Now()}, nil
}

// WithNewContext snapshots, runs action, then waits up to DetectTimeout for a new context
// or a location change. If contexts were added it switches to the newest and runs
// onOpened there, otherwise onOpened runs in place. On every exit path, including
// panics and cancellation, contexts created since the first snapshot are closed, focus
// returns to the original context and its location is taken back to where it was.
// Only a failed restore is returned as *navcheck.RestoreFailedErr.
func (t *Tracker) WithNewContext(ctx context.Context, action Action, onOpened OnOpened) (*Switch, error) {
	return t.WithNewContextWithin(ctx, 0, action, onOpened)
}

// WithNewContextWithin is WithNewContext with detection also bounded by budget, counted
// from when action returns. A zero budget leaves DetectTimeout as the only bound.
func (t *Tracker) WithNewContextWithin(ctx context.Context, budget time.Duration, action Action, onOpened OnOpened) (sw *Switch, err error) {
	logger := log.Ctx(ctx)

	before, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sw = &Switch{Before: before}

	defer func() {
		p := recover()
		prior := err
		if p != nil {
			prior = errors.Errorf("panic: %v", p)
		}
		if rerr := t.restore(ctx, sw); rerr != nil {
			err = &navcheck.RestoreFailedErr{Context: before.Focused, URL: before.FocusedURL, Cause: rerr, Prior: prior}
			logger.Error().Err(err).Msg("restore failed")
		}
		if p != nil {
			panic(p)
		}
	}()

	sw.ActionErr = action(ctx)
	sw.Triggered = time.Now()
	if sw.ActionErr != nil {
		if after, serr := t.Snapshot(ctx); serr == nil {
			sw.After = after
			sw.Delta = navcheck.Diff(before, after)
		}
		return sw, errors.Wrap(sw.ActionErr, "action failed")
	}

	limit := t.DetectTimeout
	if budget > 0 && budget < limit {
		limit = budget
	}
	after, err := t.detect(ctx, before, limit)
	if err != nil {
		return sw, err
	}
	sw.After = after
	sw.Delta = navcheck.Diff(before, after)

	if len(sw.Delta.Added) > 0 {
		sw.Opened = sw.Delta.Newest()
		sw.Unexpected = sw.Delta.Added[:len(sw.Delta.Added)-1]
		if len(sw.Unexpected) > 0 {
			logger.Warn().Str("opened", string(sw.Opened)).Interface("unexpected", sw.Unexpected).Msg("action opened multiple contexts")
		}
		if err := t.session.SwitchTo(ctx, sw.Opened); err != nil {
			return sw, errors.Wrapf(err, "switching to %s", sw.Opened)
		}
		logger.Debug().Str("opened", string(sw.Opened)).Msg("switched to new context")
	}

	return sw, onOpened(ctx, sw)
}

// detect polls snapshots until a context was added or the focused location changed.
// On timeout the last snapshot is returned, it simply shows no change.
func (t *Tracker) detect(ctx context.Context, before *navcheck.ContextSet, limit time.Duration) (*navcheck.ContextSet, error) {
	var last *navcheck.ContextSet
	res := wait.Await(ctx, wait.Spec{Timeout: limit, PollInterval: t.PollInterval}, func(ctx context.Context) (*navcheck.ContextSet, bool, error) {
		snap, err := t.Snapshot(ctx)
		if err != nil {
			return nil, false, err
		}
		last = snap
		changed := len(navcheck.Diff(before, snap).Added) > 0 || snap.FocusedURL != before.FocusedURL
		return snap, changed, nil
	})

	switch res.Outcome {
	case wait.Satisfied:
		return res.Value, nil
	case wait.TimedOut:
		if last == nil {
			return t.Snapshot(ctx)
		}
		return last, nil
	}
	return nil, res.Err("context change")
}

// restore runs on a context that ignores the caller's cancellation but is bounded by
// RestoreTimeout.
func (t *Tracker) restore(parent context.Context, sw *Switch) error {
	logger := log.Ctx(parent)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), t.RestoreTimeout)
	defer cancel()
	before := sw.Before

	open, err := t.session.ListContexts(ctx)
	if err != nil {
		return errors.Wrap(err, "listing contexts")
	}
	for _, h := range open {
		if before.Contains(h) {
			continue
		}
		if sw.After == nil || !sw.After.Contains(h) {
			sw.Late = append(sw.Late, h)
			logger.Warn().Str("context", string(h)).Msg("closing context opened after detection")
		}
		if err := t.session.CloseContext(ctx, h); err != nil {
			logger.Warn().Err(err).Str("context", string(h)).Msg("failed to close context")
		}
	}

	if err := t.session.SwitchTo(ctx, before.Focused); err != nil {
		return errors.Wrapf(err, "switching back to %s", before.Focused)
	}
	focused, err := t.session.FocusedContext(ctx)
	if err != nil {
		return errors.Wrap(err, "confirming focus")
	}
	if focused != before.Focused {
		return errors.Errorf("focus is on %s after switching back to %s", focused, before.Focused)
	}

	current, err := t.session.CurrentURL(ctx)
	if err != nil {
		return errors.Wrap(err, "reading location")
	}

	// redirect chains leave several entries to walk back through
	for backs := 0; current != before.FocusedURL; backs++ {
		if backs == maxBacks {
			return errors.Errorf("still at %s after %d back navigations", current, backs)
		}
		logger.Debug().Str("from", current).Str("to", before.FocusedURL).Msg("navigating back")
		if err := t.session.NavigateBack(ctx); err != nil {
			return errors.Wrap(err, "navigating back")
		}
		prev := current
		res := wait.Await(ctx, wait.Spec{Timeout: t.RestoreTimeout, PollInterval: t.PollInterval}, func(ctx context.Context) (string, bool, error) {
			u, err := t.session.CurrentURL(ctx)
			return u, err == nil && u != prev, err
		})
		if !res.OK() {
			return res.Err("leaving " + prev)
		}
		current = res.Value
	}
	return nil
}
