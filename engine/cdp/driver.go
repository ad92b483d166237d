// Package cdp is the chromedp backed driver. It evaluates the same element scripts as
// the gcd driver, each browsing context gets its own chromedp target context.
package cdp

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdpexec "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/navcheck"
)

// revive:exported
var (
	ErrDriverClosed = errors.New("driver is closed")
)

type tab struct {
	id     target.ID
	ctx    context.Context // nil until first used
	cancel context.CancelFunc
	closed int32
}

func (t *tab) handle() navcheck.ContextHandle {
	return navcheck.ContextHandle(t.id)
}

func (t *tab) isClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

func (t *tab) markClosed() {
	atomic.StoreInt32(&t.closed, 1)
}

// Driver is a navcheck.Driver over a chromedp browser context
type Driver struct {
	browserCtx        context.Context
	id                int64
	mu                sync.RWMutex
	tabs              []*tab // discovery order
	current           *tab
	navigationTimeout time.Duration
	shutdown          int32
	cleanup           []func()
}

// NewDriver starts the browser behind browserCtx if needed and focuses its first tab
func NewDriver(ctx context.Context, browserCtx context.Context) (*Driver, error) {
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, err
	}
	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Target == nil {
		return nil, errors.New("browser context has no target")
	}

	d := &Driver{
		browserCtx:        browserCtx,
		id:                navcheck.GetDriverID(),
		navigationTimeout: navcheck.DefaultNavigationTimeout,
	}
	first := &tab{id: c.Target.TargetID, ctx: browserCtx}
	d.tabs = append(d.tabs, first)
	d.current = first

	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		if destroyed, ok := ev.(*target.EventTargetDestroyed); ok {
			d.mu.RLock()
			if t := d.lookup(navcheck.ContextHandle(destroyed.TargetID)); t != nil {
				t.markClosed()
			}
			d.mu.RUnlock()
		}
	})
	log.Ctx(ctx).Debug().Int64("driver", d.id).Str("context", string(first.id)).Msg("driver attached")
	return d, nil
}

// SetNavigationTimeout bounds Navigate and NavigateBack
func (d *Driver) SetNavigationTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.navigationTimeout = timeout
	}
}

// lookup caller must hold the lock
func (d *Driver) lookup(handle navcheck.ContextHandle) *tab {
	for _, t := range d.tabs {
		if t.handle() == handle {
			return t
		}
	}
	return nil
}

// refresh adds page targets we have not seen and closes the ones that went away
func (d *Driver) refresh(ctx context.Context) error {
	if atomic.LoadInt32(&d.shutdown) == 1 {
		return ErrDriverClosed
	}
	runCtx, cancel := bound(ctx, d.browserCtx)
	defer cancel()
	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return errors.Wrap(err, "listing targets")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	present := make(map[target.ID]struct{}, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		present[info.TargetID] = struct{}{}
		if d.lookup(navcheck.ContextHandle(info.TargetID)) == nil {
			d.tabs = append(d.tabs, &tab{id: info.TargetID})
		}
	}
	for _, t := range d.tabs {
		if _, ok := present[t.id]; !ok {
			t.markClosed()
		}
	}
	return nil
}

// bound derives a context from chromedp's ctx that is also cancelled with ctx, so a
// call's deadline applies without cancelling the tab itself
func bound(ctx context.Context, chromeCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(chromeCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// attach creates the chromedp context for t, caller must hold the write lock
func (d *Driver) attach(t *tab) {
	if t.ctx == nil {
		t.ctx, t.cancel = chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(t.id))
	}
}

func (d *Driver) focused() (*tab, error) {
	if atomic.LoadInt32(&d.shutdown) == 1 {
		return nil, ErrDriverClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return nil, navcheck.ErrNoFocusedContext
	}
	if d.current.isClosed() {
		return nil, errors.Wrapf(navcheck.ErrContextClosed, "%s", d.current.id)
	}
	return d.current, nil
}

// run actions in the focused tab
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := d.focused()
	if err != nil {
		return err
	}
	runCtx, cancel := bound(ctx, t.ctx)
	defer cancel()

	err = chromedp.Run(runCtx, actions...)
	var exp *runtime.ExceptionDetails
	switch {
	case err == nil:
		return nil
	case t.isClosed():
		return errors.Wrapf(navcheck.ErrContextClosed, "%s", t.id)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &exp), documentGone(err.Error()):
		return errors.Wrap(navcheck.ErrNotReady, err.Error())
	}
	return err
}

func documentGone(msg string) bool {
	return strings.Contains(msg, "Execution context was destroyed") ||
		strings.Contains(msg, "Cannot find default execution context") ||
		strings.Contains(msg, "Inspected target navigated or closed")
}

// FindCandidates matching sel in the focused tab, in document order
func (d *Driver) FindCandidates(ctx context.Context, sel navcheck.Selector) ([]navcheck.ElementHandle, error) {
	t, err := d.focused()
	if err != nil {
		return nil, err
	}
	var count int
	if err := d.run(ctx, chromedp.Evaluate(navcheck.CountScript(sel), &count)); err != nil {
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
	if err := d.run(ctx, chromedp.Evaluate(navcheck.InspectScript(q.Selector, q.Index, scroll), inspection)); err != nil {
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

// Click scrolls the element into view and clicks its center
func (d *Driver) Click(ctx context.Context, el navcheck.ElementHandle) error {
	inspection, err := d.inspect(ctx, el, true)
	if err != nil {
		return err
	}
	if !inspection.Interactable {
		return errors.Errorf("element %s is not interactable", el)
	}
	return d.run(ctx, chromedp.MouseClickXY(inspection.X, inspection.Y))
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
	handles := make([]navcheck.ContextHandle, 0, len(d.tabs))
	for _, t := range d.tabs {
		if !t.isClosed() {
			handles = append(handles, t.handle())
		}
	}
	return handles, nil
}

// FocusedContext commands are sent to
func (d *Driver) FocusedContext(ctx context.Context) (navcheck.ContextHandle, error) {
	t, err := d.focused()
	if err != nil {
		return "", err
	}
	return t.handle(), nil
}

func (d *Driver) open(ctx context.Context, handle navcheck.ContextHandle) (*tab, error) {
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
	d.mu.Lock()
	d.attach(t)
	d.mu.Unlock()
	return t, nil
}

// SwitchTo activates handle and sends further commands to it
func (d *Driver) SwitchTo(ctx context.Context, handle navcheck.ContextHandle) error {
	t, err := d.open(ctx, handle)
	if err != nil {
		return err
	}
	runCtx, cancel := bound(ctx, t.ctx)
	defer cancel()
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return target.ActivateTarget(t.id).Do(cdpexec.WithExecutor(ctx, c.Browser))
	}))
	if err != nil {
		return errors.Wrapf(err, "activating %s", handle)
	}
	d.mu.Lock()
	d.current = t
	d.mu.Unlock()
	return nil
}

// CloseContext closes the tab, closing the focused one leaves nothing focused
func (d *Driver) CloseContext(ctx context.Context, handle navcheck.ContextHandle) error {
	t, err := d.open(ctx, handle)
	if err != nil {
		return err
	}
	runCtx, cancel := bound(ctx, t.ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, page.Close()); err != nil && !t.isClosed() {
		return errors.Wrapf(err, "closing %s", handle)
	}
	t.markClosed()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (d *Driver) location(ctx context.Context) (*navcheck.Location, error) {
	loc := &navcheck.Location{}
	if err := d.run(ctx, chromedp.Evaluate(navcheck.LocationScript, loc)); err != nil {
		return nil, err
	}
	return loc, nil
}

// CurrentURL of the focused tab's document
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	loc, err := d.location(ctx)
	if err != nil {
		return "", err
	}
	return loc.Href, nil
}

// CurrentOrigin of the focused tab's document, "null" when opaque
func (d *Driver) CurrentOrigin(ctx context.Context) (string, error) {
	loc, err := d.location(ctx)
	if err != nil {
		return "", err
	}
	return loc.Origin, nil
}

// Navigate the focused tab and wait for its load event
func (d *Driver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.navigationTimeout)
	defer cancel()
	return errors.Wrapf(d.run(navCtx, chromedp.Navigate(url)), "navigating to %s", url)
}

// NavigateBack one history entry in the focused tab
func (d *Driver) NavigateBack(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, d.navigationTimeout)
	defer cancel()
	return errors.Wrap(d.run(navCtx, chromedp.NavigateBack()), "navigating back")
}

// ID of this driver session
func (d *Driver) ID() int64 {
	return d.id
}

// Close every tab context and the browser
func (d *Driver) Close() error {
	if !atomic.CompareAndSwapInt32(&d.shutdown, 0, 1) {
		return nil
	}
	d.mu.Lock()
	for _, t := range d.tabs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	d.mu.Unlock()

	err := chromedp.Cancel(d.browserCtx)
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
	return err
}
