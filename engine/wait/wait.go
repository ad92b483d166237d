// Package wait polls predicates against browser state until they succeed, time out or
// are cancelled. Waits never raise on timeout; the caller decides what a timeout means.
package wait

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/navcheck"
)

// Outcome of a wait
type Outcome int8

// revive:exported
const (
	Satisfied Outcome = iota + 1
	TimedOut
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Satisfied:
		return "satisfied"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Spec bounds a wait. Zero values take the defaults.
type Spec struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultSpec 10 seconds, polled every 150ms
var DefaultSpec = Spec{Timeout: navcheck.DefaultNavigationTimeout, PollInterval: navcheck.DefaultPollInterval}

// For returns a spec with the given timeout and the default poll interval
func For(timeout time.Duration) Spec {
	return Spec{Timeout: timeout, PollInterval: DefaultSpec.PollInterval}
}

func (s Spec) normalize() Spec {
	if s.Timeout <= 0 {
		s.Timeout = DefaultSpec.Timeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultSpec.PollInterval
	}
	if s.PollInterval > s.Timeout {
		s.PollInterval = s.Timeout
	}
	return s
}

// Predicate is evaluated once per poll. done with a nil error satisfies the wait, a nil
// error without done keeps polling, a transient error (navcheck.IsTransient) keeps
// polling and any other error fails the wait.
type Predicate[T any] func(ctx context.Context) (value T, done bool, err error)

// Result of a wait
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	LastErr  error // last transient error, or the failing error
}

// OK if the predicate was satisfied
func (r Result[T]) OK() bool {
	return r.Outcome == Satisfied
}

// Err converts a non satisfied result to an error describing what, nil otherwise
func (r Result[T]) Err(what string) error {
	switch r.Outcome {
	case Satisfied:
		return nil
	case TimedOut:
		return &navcheck.TimeoutErr{Message: what, Attempts: r.Attempts, Elapsed: r.Elapsed, LastErr: r.LastErr}
	case Cancelled:
		return errors.Wrapf(context.Canceled, "waiting for %s", what)
	}
	return errors.Wrapf(r.LastErr, "waiting for %s", what)
}

// Condition is a reusable predicate plus its bounds
type Condition[T any] struct {
	Name      string
	Spec      Spec
	Predicate Predicate[T]
}

// Await the condition
func (c Condition[T]) Await(ctx context.Context) Result[T] {
	res := Await(ctx, c.Spec, c.Predicate)
	if !res.OK() {
		log.Ctx(ctx).Debug().Str("condition", c.Name).Int("attempts", res.Attempts).Dur("elapsed", res.Elapsed).Msg(res.Outcome.String())
	}
	return res
}

// Await evaluates pred immediately and then every poll interval until it is satisfied,
// fails, spec.Timeout elapses or ctx is done. pred receives a context bounded by the
// wait deadline. Once cancellation is observed pred is never called again.
func Await[T any](ctx context.Context, spec Spec, pred Predicate[T]) Result[T] {
	spec = spec.normalize()
	start := time.Now()
	res := Result[T]{}

	waitCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	ticker := time.NewTicker(spec.PollInterval)
	defer ticker.Stop()

	finish := func(o Outcome) Result[T] {
		res.Outcome = o
		res.Elapsed = time.Since(start)
		return res
	}

	for {
		if ctx.Err() != nil {
			return finish(Cancelled)
		}
		if waitCtx.Err() != nil {
			return finish(TimedOut)
		}

		res.Attempts++
		value, done, err := pred(waitCtx)
		switch {
		case err == nil && done:
			res.Value = value
			return finish(Satisfied)
		case err == nil:
		case navcheck.IsTransient(err):
			res.LastErr = err
		case waitCtx.Err() != nil:
			// the driver call was cut off by our own deadline or cancellation
			res.LastErr = err
		default:
			res.LastErr = err
			return finish(Failed)
		}

		select {
		case <-ctx.Done():
			return finish(Cancelled)
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return finish(Cancelled)
			}
			return finish(TimedOut)
		case <-ticker.C:
		}
	}
}

// Until is Await for predicates without a value
func Until(ctx context.Context, spec Spec, cond func(ctx context.Context) (bool, error)) Result[struct{}] {
	return Await(ctx, spec, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	})
}
