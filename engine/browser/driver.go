// Package browser drives chrome over the devtools protocol with gcd. Elements are found
// and inspected by evaluating scripts in the focused target so every handle is a
// (selector, index) pair re-evaluated on use.
package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
	"github.com/wirepair/gcd/gcdapi"
	"gitlab.com/navcheck/engine/wait"
	"gitlab.com/navcheck/navcheck"
)

// evaluation timeout in milliseconds
const evaluateTimeout = 1000

// revive:exported
var (
	ErrNavigating         = errors.New("error in navigation")
	ErrNavigationTimedOut = errors.New("navigation timed out")
	ErrDriverClosed       = errors.New("driver is closed")
)

type target struct {
	t      *gcd.ChromeTarget
	closed int32
	reason atomic.Value
}

func (t *target) handle() navcheck.ContextHandle {
	return navcheck.ContextHandle(t.t.Target.Id)
}

func (t *target) isClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

func (t *target) markClosed(reason string) {
	if atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		t.reason.Store(reason)
	}
}

func (t *target) closedErr() error {
	reason, _ := t.reason.Load().(string)
	return errors.Wrapf(navcheck.ErrContextClosed, "%s %s", t.handle(), reason)
}

// Driver is a navcheck.Driver over one chrome process
type Driver struct {
	g                 *gcd.Gcd
	id                int64
	mu                sync.RWMutex
	targets           []*target // discovery order
	known             map[string]struct{}
	current           *target
	navigationTimeout time.Duration
	pollInterval      time.Duration
	shutdown          int32
	onClose           func() error
}

// NewDriver attaches to the page targets of a connected browser and focuses the first
func NewDriver(ctx context.Context, g *gcd.Gcd) (*Driver, error) {
	d := &Driver{
		g:                 g,
		id:                navcheck.GetDriverID(),
		known:             make(map[string]struct{}),
		navigationTimeout: navcheck.DefaultNavigationTimeout,
		pollInterval:      navcheck.DefaultPollInterval,
	}
	if err := d.refresh(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.targets {
		if !t.isClosed() {
			d.current = t
			break
		}
	}
	if d.current == nil {
		ct, err := g.NewTab()
		if err != nil {
			return nil, errors.Wrap(err, "opening first tab")
		}
		d.known[ct.Target.Id] = struct{}{}
		d.current = d.track(ctx, ct)
	}
	log.Ctx(ctx).Debug().Int64("driver", d.id).Str("context", string(d.current.handle())).Msg("driver attached")
	return d, nil
}

// SetNavigationTimeout for Navigate and NavigateBack to wait for the document
func (d *Driver) SetNavigationTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.navigationTimeout = timeout
	}
}

// SetPollInterval used while waiting for documents
func (d *Driver) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

// refresh picks up targets opened since the last call
func (d *Driver) refresh(ctx context.Context) error {
	if atomic.LoadInt32(&d.shutdown) == 1 {
		return ErrDriverClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	found, err := d.g.GetNewTargets(d.known)
	if err != nil {
		return errors.Wrap(err, "listing targets")
	}
	// /json lists the newest target first
	for i := len(found) - 1; i >= 0; i-- {
		ct := found[i]
		d.known[ct.Target.Id] = struct{}{}
		if ct.Target.Type != "page" {
			continue
		}
		d.track(ctx, ct)
	}
	return nil
}

// track a page target, caller must hold the lock
func (d *Driver) track(ctx context.Context, ct *gcd.ChromeTarget) *target {
	t := &target{t: ct}
	d.targets = append(d.targets, t)

	ct.Subscribe("Inspector.targetCrashed", func(_ *gcd.ChromeTarget, payload []byte) {
		log.Ctx(ctx).Warn().Str("context", string(t.handle())).Msgf("tab crashed: %s", string(payload))
		t.markClosed("crashed")
	})
	ct.Subscribe("Inspector.detached", func(_ *gcd.ChromeTarget, payload []byte) {
		header := &gcdapi.InspectorDetachedEvent{}
		reason := "detached"
		if err := json.Unmarshal(payload, header); err == nil && header.Params.Reason != "" {
			reason = header.Params.Reason
		}
		t.markClosed(reason)
	})
	if _, err := ct.Inspector.Enable(); err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("context", string(t.handle())).Msg("failed to enable inspector events")
	}
	return t
}

// lookup a tracked target, caller must hold the lock
func (d *Driver) lookup(handle navcheck.ContextHandle) *target {
	for _, t := range d.targets {
		if t.handle() == handle {
			return t
		}
	}
	return nil
}

func (d *Driver) focused() (*target, error) {
	if atomic.LoadInt32(&d.shutdown) == 1 {
		return nil, ErrDriverClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return nil, navcheck.ErrNoFocusedContext
	}
	if d.current.isClosed() {
		return nil, d.current.closedErr()
	}
	return d.current, nil
}

// evaluate expression in the focused target and decode its value into out
func (d *Driver) evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := d.focused()
	if err != nil {
		return err
	}

	params := &gcdapi.RuntimeEvaluateParams{
		Expression:    expression,
		ObjectGroup:   "navcheck",
		Silent:        true,
		ReturnByValue: true,
		Timeout:       evaluateTimeout,
	}
	r, exp, err := t.t.Runtime.EvaluateWithParams(params)
	switch {
	case t.isClosed():
		return t.closedErr()
	case err != nil && documentGone(err.Error()):
		return errors.Wrap(navcheck.ErrNotReady, err.Error())
	case err != nil:
		return errors.Wrap(err, "evaluating script")
	case exp != nil:
		return errors.Wrapf(navcheck.ErrNotReady, "script exception: %s", exp.Text)
	case r == nil:
		return errors.Wrap(navcheck.ErrNotReady, "empty evaluation result")
	}
	return navcheck.DecodeValue(r.Value, out)
}

// documentGone for errors chrome returns while a document is being replaced
func documentGone(msg string) bool {
	return strings.Contains(msg, "Execution context was destroyed") ||
		strings.Contains(msg, "Cannot find default execution context") ||
		strings.Contains(msg, "Inspected target navigated or closed")
}

// FindCandidates matching sel in the focused target, in document order
func (d *Driver) FindCandidates(ctx context.Context, sel navcheck.Selector) ([]navcheck.ElementHandle, error) {
	t, err := d.focused()
	if err != nil {
		return nil, err
	}
	var count int
	if err := d.evaluate(ctx, navcheck.CountScript(sel), &count); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errors.Wrapf(navcheck.ErrInvalidSelector, "%s", sel)
	}

	handles := make([]navcheck.ElementHandle, 0, count)
	for i := 0; i < count; i++ {
		handles = append(handles, &navcheck.QueryHandle{Context: t.handle(), Selector: sel, Index: i})
	}
	return handles, nil
}

func (d *Driver) inspect(ctx context.Context, el navcheck.ElementHandle, scroll bool) (*navcheck.Inspection, error) {
	q, ok := el.(*navcheck.QueryHandle)
	if !ok {
		return nil, errors.Errorf("foreign element handle %T", el)
	}
	t, err := d.focused()
	if err != nil {
		return nil, err
	}
	if t.handle() != q.Context {
		return nil, errors.Wrapf(navcheck.ErrStaleElement, "%s is not in the focused context", q)
	}

	inspection := &navcheck.Inspection{}
	if err := d.evaluate(ctx, navcheck.InspectScript(q.Selector, q.Index, scroll), inspection); err != nil {
		return nil, err
	}
	if inspection.Stale {
		return nil, errors.Wrap(navcheck.ErrStaleElement, q.String())
	}
	return inspection, nil
}

// IsVisible if the element has a box and is not hidden by style
func (d *Driver) IsVisible(ctx context.Context, el navcheck.ElementHandle) (bool, error) {
	inspection, err := d.inspect(ctx, el, false)
	if err != nil {
		return false, err
	}
	return inspection.Visible, nil
}

// IsInteractable if visible, enabled and accepting pointer events
func (d *Driver) IsInteractable(ctx context.Context, el navcheck.ElementHandle) (bool, error) {
	inspection, err := d.inspect(ctx, el, false)
	if err != nil {
		return false, err
	}
	return inspection.Interactable, nil
}

// Click scrolls the element into view and clicks its center with the mouse
func (d *Driver) Click(ctx context.Context, el navcheck.ElementHandle) error {
	inspection, err := d.inspect(ctx, el, true)
	if err != nil {
		return err
	}
	if !inspection.Interactable {
		return errors.Errorf("element %s is not interactable", el)
	}
	t, err := d.focused()
	if err != nil {
		return err
	}
	return click(t.t, inspection.X, inspection.Y, 1)
}

func click(ct *gcd.ChromeTarget, x, y float64, clickCount int) error {
	for _, kind := range []string{"mousePressed", "mouseReleased"} {
		params := &gcdapi.InputDispatchMouseEventParams{TheType: kind,
			X:          x,
			Y:          y,
			Button:     "left",
			ClickCount: clickCount,
		}
		if _, err := ct.Input.DispatchMouseEventWithParams(params); err != nil {
			return errors.Wrap(err, kind)
		}
	}
	return nil
}

// ListContexts open page targets, oldest first
func (d *Driver) ListContexts(ctx context.Context) ([]navcheck.ContextHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.refresh(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	handles := make([]navcheck.ContextHandle, 0, len(d.targets))
	for _, t := range d.targets {
		if !t.isClosed() {
			handles = append(handles, t.handle())
		}
	}
	return handles, nil
}

// FocusedContext is the target commands are sent to, not necessarily the one chrome shows
func (d *Driver) FocusedContext(ctx context.Context) (navcheck.ContextHandle, error) {
	t, err := d.focused()
	if err != nil {
		return "", err
	}
	return t.handle(), nil
}

func (d *Driver) open(ctx context.Context, handle navcheck.ContextHandle) (*target, error) {
	d.mu.RLock()
	t := d.lookup(handle)
	d.mu.RUnlock()
	if t == nil {
		if err := d.refresh(ctx); err != nil {
			return nil, err
		}
		d.mu.RLock()
		t = d.lookup(handle)
		d.mu.RUnlock()
	}
	if t == nil || t.isClosed() {
		return nil, errors.Wrapf(navcheck.ErrUnknownContext, "%s", handle)
	}
	return t, nil
}

// SwitchTo activates handle and sends further commands to it
func (d *Driver) SwitchTo(ctx context.Context, handle navcheck.ContextHandle) error {
	t, err := d.open(ctx, handle)
	if err != nil {
		return err
	}
	if err := d.g.ActivateTab(t.t); err != nil {
		return errors.Wrapf(err, "activating %s", handle)
	}
	d.mu.Lock()
	d.current = t
	d.mu.Unlock()
	return nil
}

// CloseContext closes the target, closing the focused one leaves nothing focused
func (d *Driver) CloseContext(ctx context.Context, handle navcheck.ContextHandle) error {
	t, err := d.open(ctx, handle)
	if err != nil {
		return err
	}
	if err := d.g.CloseTab(t.t); err != nil {
		return errors.Wrapf(err, "closing %s", handle)
	}
	t.markClosed("closed")
	return nil
}

// CurrentURL of the focused target's document
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	loc, err := d.location(ctx)
	if err != nil {
		return "", err
	}
	return loc.Href, nil
}

// CurrentOrigin of the focused target's document, "null" when opaque
func (d *Driver) CurrentOrigin(ctx context.Context) (string, error) {
	loc, err := d.location(ctx)
	if err != nil {
		return "", err
	}
	return loc.Origin, nil
}

func (d *Driver) location(ctx context.Context) (*navcheck.Location, error) {
	loc := &navcheck.Location{}
	if err := d.evaluate(ctx, navcheck.LocationScript, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// Navigate the focused target and wait for the document
func (d *Driver) Navigate(ctx context.Context, url string) error {
	t, err := d.focused()
	if err != nil {
		return err
	}
	navParams := &gcdapi.PageNavigateParams{Url: url, TransitionType: "typed"}
	_, _, errText, err := t.t.Page.NavigateWithParams(navParams)
	if err != nil {
		return errors.Wrapf(err, "navigating to %s", url)
	}
	if errText != "" {
		return errors.Wrap(ErrNavigating, errText)
	}
	return d.WaitReady(ctx, url)
}

// NavigateBack one history entry in the focused target
func (d *Driver) NavigateBack(ctx context.Context) error {
	t, err := d.focused()
	if err != nil {
		return err
	}
	idx, entries, err := t.t.Page.GetNavigationHistory()
	if err != nil {
		return errors.Wrap(err, "reading history")
	}
	if idx <= 0 || idx > len(entries)-1 {
		return errors.Errorf("no history to go back to from entry %d of %d", idx, len(entries))
	}
	prev := entries[idx-1]
	if _, err := t.t.Page.NavigateToHistoryEntry(prev.Id); err != nil {
		return errors.Wrapf(err, "navigating back to %s", prev.Url)
	}
	return d.WaitReady(ctx, prev.Url)
}

// WaitReady until the focused document finished loading
func (d *Driver) WaitReady(ctx context.Context, url string) error {
	res := wait.Until(ctx, wait.Spec{Timeout: d.navigationTimeout, PollInterval: d.pollInterval}, func(ctx context.Context) (bool, error) {
		var state string
		if err := d.evaluate(ctx, navcheck.ReadyStateScript, &state); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	switch res.Outcome {
	case wait.Satisfied:
		return nil
	case wait.TimedOut:
		return errors.Wrapf(ErrNavigationTimedOut, "%s after %s", url, res.Elapsed)
	}
	return res.Err("document " + url)
}

// ID of this driver session
func (d *Driver) ID() int64 {
	return d.id
}

// Close the driver and hand the browser back
func (d *Driver) Close() error {
	if !atomic.CompareAndSwapInt32(&d.shutdown, 0, 1) {
		return nil
	}
	if d.onClose != nil {
		return d.onClose()
	}
	return nil
}
