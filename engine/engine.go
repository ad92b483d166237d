// Package engine runs configured navigation checks against a single driver session.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"

	"gitlab.com/navcheck/engine/locate"
	"gitlab.com/navcheck/engine/navigation"
	"gitlab.com/navcheck/engine/report"
	"gitlab.com/navcheck/engine/window"
	"gitlab.com/navcheck/navcheck"
)

// DriverOpener starts the driver session a run uses
type DriverOpener func(ctx context.Context, cfg *navcheck.Config) (navcheck.Driver, error)

// Engine is our check runner
type Engine struct {
	cfg      *navcheck.Config
	store    navcheck.OutcomeStore
	reporter navcheck.Reporter
	open     DriverOpener
	scope    *ScopeService
	runID    string
}

// New engine
func New(cfg *navcheck.Config, store navcheck.OutcomeStore, open DriverOpener) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		reporter: report.New(),
		open:     open,
		scope:    NewScopeServiceFromConfig(cfg),
		runID:    uuid.NewV4().String(),
	}
}

// SetReporter overrides the default reporter
func (e *Engine) SetReporter(reporter navcheck.Reporter) *Engine {
	e.reporter = reporter
	return e
}

// Reporter results are collected in
func (e *Engine) Reporter() navcheck.Reporter {
	return e.reporter
}

// RunID outcomes of this engine are stored under
func (e *Engine) RunID() string {
	return e.runID
}

// Init the outcome store
func (e *Engine) Init(ctx context.Context) error {
	log.Info().Msg("initializing outcome store")
	if e.store == nil {
		return nil
	}
	return e.store.Init()
}

// Run every configured check in order on one driver session. Checks after a failed
// restore or a cancellation are reported as aborted and the error is returned.
func (e *Engine) Run(ctx context.Context) error {
	logger := log.With().Str("run_id", e.runID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Str("driver", e.cfg.Driver).Int("checks", len(e.cfg.Checks)).Msg("starting run")
	driver, err := e.open(ctx, e.cfg)
	if err != nil {
		return errors.Wrap(err, "opening driver")
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close driver")
		}
	}()

	if e.cfg.URL != "" {
		if err := driver.Navigate(ctx, e.cfg.URL); err != nil {
			return errors.Wrapf(err, "loading %s", e.cfg.URL)
		}
	}

	var fatal error
	for _, check := range e.cfg.Checks {
		if fatal == nil && ctx.Err() != nil {
			fatal = errors.Wrap(ctx.Err(), "run interrupted")
		}
		if fatal != nil {
			e.reporter.Add(&navcheck.CheckResult{Name: check.Name, Status: navcheck.CheckAborted, Err: fatal})
			continue
		}

		result := e.RunCheck(ctx, driver, check)
		e.reporter.Add(result)
		if result.Outcome != nil && e.store != nil {
			if err := e.store.AddOutcome(result.Outcome); err != nil {
				logger.Error().Err(err).Str("check", check.Name).Msg("failed to store outcome")
			}
		}
		if result.Status == navcheck.CheckAborted {
			fatal = result.Err
		}
	}
	logger.Info().Msg("run finished")
	return fatal
}

// RunCheck loads the check's page, runs its prepare clicks, resolves the target and,
// when an origin is expected, verifies where clicking it leads.
func (e *Engine) RunCheck(ctx context.Context, driver navcheck.Driver, check navcheck.CheckConfig) *navcheck.CheckResult {
	start := time.Now()
	logger := log.Ctx(ctx).With().Str("check", check.Name).Logger()
	ctx = logger.WithContext(ctx)

	result := &navcheck.CheckResult{Name: check.Name}
	finish := func(status navcheck.CheckStatus, err error) *navcheck.CheckResult {
		result.Status = status
		result.Err = err
		result.Duration = time.Since(start)
		logger.Info().Str("status", status.String()).Dur("duration", result.Duration).Err(err).Msg("check finished")
		return result
	}

	resolver := locate.New(driver, e.cfg.PollInterval.D())
	perCandidate := e.cfg.CandidateTimeout.D()

	if check.Page != "" {
		if e.scope.Check(check.Page) == navcheck.ExcludedFromScope {
			return finish(navcheck.CheckSkipped, errors.Errorf("page %s is excluded from scope", check.Page))
		}
		if err := driver.Navigate(ctx, check.Page); err != nil {
			return finish(navcheck.CheckFailed, errors.Wrapf(err, "loading %s", check.Page))
		}
	}

	for i, step := range check.Prepare {
		spec, err := navcheck.LocatorSpecFromConfig(check.Name+" prepare", step)
		if err != nil {
			return finish(navcheck.CheckFailed, err)
		}
		target := resolver.Resolve(ctx, spec, perCandidate)
		if !target.Found() {
			return finish(e.missing(check, target), errors.Wrapf(target.Err(), "prepare step %d", i))
		}
		if err := driver.Click(ctx, target.Element); err != nil {
			return finish(navcheck.CheckFailed, errors.Wrapf(err, "prepare step %d click", i))
		}
	}

	spec, err := navcheck.LocatorSpecFromConfig(check.Name, check.Target)
	if err != nil {
		return finish(navcheck.CheckFailed, err)
	}

	if check.Expect == "" {
		result.Target = resolver.ResolvePresent(ctx, spec, perCandidate)
		if !result.Target.Found() {
			return finish(e.missing(check, result.Target), result.Target.Err())
		}
		return finish(navcheck.CheckPassed, nil)
	}

	result.Target = resolver.Resolve(ctx, spec, perCandidate)
	if !result.Target.Found() {
		return finish(e.missing(check, result.Target), result.Target.Err())
	}

	outcome, err := e.verifier(driver).VerifyExternalNavigation(ctx, navigation.ClickTrigger(driver, result.Target.Element), check.Expect, check.Timeout.D())
	outcome.Label = check.Name
	result.Outcome = outcome

	switch {
	case err != nil:
		return finish(navcheck.CheckAborted, err)
	case outcome.Passed():
		if outcome.Scope == navcheck.ExcludedFromScope {
			logger.Warn().Str("observed", outcome.ObservedURL).Msg("navigation landed on an excluded url")
		}
		return finish(navcheck.CheckPassed, nil)
	}
	return finish(navcheck.CheckFailed, outcome.Err())
}

func (e *Engine) missing(check navcheck.CheckConfig, target *navcheck.ResolvedTarget) navcheck.CheckStatus {
	switch {
	case target.Cancelled:
		return navcheck.CheckAborted
	case check.Optional:
		return navcheck.CheckSkipped
	}
	return navcheck.CheckFailed
}

func (e *Engine) verifier(driver navcheck.Driver) *navigation.Verifier {
	tracker := window.New(driver)
	tracker.DetectTimeout = e.cfg.DetectTimeout.D()
	tracker.RestoreTimeout = e.cfg.RestoreTimeout.D()
	tracker.PollInterval = e.cfg.PollInterval.D()

	v := navigation.New(driver, tracker)
	v.PollInterval = e.cfg.PollInterval.D()
	v.MismatchSettle = e.cfg.MismatchSettle.D()
	v.RunID = e.runID
	v.Scope = e.scope
	return v
}

// Stop closes the outcome store
func (e *Engine) Stop() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
