package mock

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/navcheck/navcheck"
)

// Element on a fake page. It matches any of Matches, in page order.
type Element struct {
	Label       string
	Matches     []navcheck.Selector
	Hidden      bool
	Disabled    bool
	AppearAfter time.Duration // absent until this long after the page loaded
	OnClick     func(b *Browser, from navcheck.ContextHandle)
}

// Page is the set of elements served at a URL
type Page struct {
	URL      string
	Elements []*Element
}

type tab struct {
	handle     navcheck.ContextHandle
	history    []string
	idx        int
	generation int
	loadedAt   time.Time
	closed     bool
}

func (t *tab) url() string {
	return t.history[t.idx]
}

// Handle is the ElementHandle returned by the fake browser. It goes stale when its
// tab navigates or closes.
type Handle struct {
	Context    navcheck.ContextHandle
	Element    *Element
	Generation int
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s/%s@%d", h.Context, h.Element.Label, h.Generation)
}

// Browser is an in memory navcheck.Driver. Tabs, history and elements are simulated;
// the XxxFn hooks inject failures.
type Browser struct {
	mu      sync.Mutex
	id      int64
	tabs    []*tab
	focused navcheck.ContextHandle
	pages   map[string]*Page
	nextTab int
	calls   map[string]int
	timers  []*time.Timer
	closed  bool

	SwitchToFn     func(handle navcheck.ContextHandle) error
	SwitchToCalled bool

	CloseContextFn     func(handle navcheck.ContextHandle) error
	CloseContextCalled bool

	NavigateBackFn     func() error
	NavigateBackCalled bool

	FindCandidatesFn func(sel navcheck.Selector) error
}

// NewBrowser with a single focused tab at startURL
func NewBrowser(startURL string, pages ...*Page) *Browser {
	b := &Browser{
		id:    navcheck.GetDriverID(),
		pages: make(map[string]*Page),
		calls: make(map[string]int),
	}
	for _, p := range pages {
		b.pages[p.URL] = p
	}
	t := b.newTab(startURL)
	b.focused = t.handle
	return b
}

// AddPage serves elements at a URL
func (b *Browser) AddPage(p *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[p.URL] = p
}

// newTab caller must hold the lock
func (b *Browser) newTab(u string) *tab {
	b.nextTab++
	t := &tab{
		handle:   navcheck.ContextHandle(fmt.Sprintf("tab-%d", b.nextTab)),
		history:  []string{u},
		loadedAt: time.Now(),
	}
	b.tabs = append(b.tabs, t)
	return t
}

// caller must hold the lock
func (b *Browser) tab(handle navcheck.ContextHandle) *tab {
	for _, t := range b.tabs {
		if t.handle == handle && !t.closed {
			return t
		}
	}
	return nil
}

// caller must hold the lock
func (b *Browser) focusedTab() (*tab, error) {
	if b.focused == "" {
		return nil, navcheck.ErrNoFocusedContext
	}
	t := b.tab(b.focused)
	if t == nil {
		return nil, errors.Wrapf(navcheck.ErrContextClosed, "%s", b.focused)
	}
	return t, nil
}

// caller must hold the lock
func (b *Browser) load(t *tab, u string) {
	t.history = append(t.history[:t.idx+1], u)
	t.idx = len(t.history) - 1
	t.generation++
	t.loadedAt = time.Now()
}

func (b *Browser) record(method string) {
	b.calls[method]++
}

// Calls made to method
func (b *Browser) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// TotalCalls made to any driver method
func (b *Browser) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

// OpenTab opens a background tab, focus stays where it is
func (b *Browser) OpenTab(u string) navcheck.ContextHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newTab(u).handle
}

// Load navigates a tab directly, as a redirect or script would
func (b *Browser) Load(handle navcheck.ContextHandle, u string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.tab(handle); t != nil {
		b.load(t, u)
	}
}

// URLOf a tab, "" if closed
func (b *Browser) URLOf(handle navcheck.ContextHandle) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.tab(handle); t != nil {
		return t.url()
	}
	return ""
}

// Open handles, oldest first
func (b *Browser) Open() []navcheck.ContextHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

func (b *Browser) openLocked() []navcheck.ContextHandle {
	handles := make([]navcheck.ContextHandle, 0, len(b.tabs))
	for _, t := range b.tabs {
		if !t.closed {
			handles = append(handles, t.handle)
		}
	}
	return handles
}

// Focused handle without counting a driver call
func (b *Browser) Focused() navcheck.ContextHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// After runs fn after d, stopped by Close
func (b *Browser) After(d time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers = append(b.timers, time.AfterFunc(d, fn))
}

// ID of this driver session
func (b *Browser) ID() int64 {
	return b.id
}

// Close stops pending timers
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.timers {
		t.Stop()
	}
	b.closed = true
	return nil
}

func matches(el *Element, sel navcheck.Selector) bool {
	for _, m := range el.Matches {
		if m == sel {
			return true
		}
	}
	return false
}

// FindCandidates returns matching elements of the focused tab's page in page order
func (b *Browser) FindCandidates(ctx context.Context, sel navcheck.Selector) ([]navcheck.ElementHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("FindCandidates")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.FindCandidatesFn != nil {
		if err := b.FindCandidatesFn(sel); err != nil {
			return nil, err
		}
	}
	t, err := b.focusedTab()
	if err != nil {
		return nil, err
	}
	page, ok := b.pages[t.url()]
	if !ok {
		return nil, nil
	}
	found := make([]navcheck.ElementHandle, 0)
	for _, el := range page.Elements {
		if !matches(el, sel) || time.Since(t.loadedAt) < el.AppearAfter {
			continue
		}
		found = append(found, &Handle{Context: t.handle, Element: el, Generation: t.generation})
	}
	return found, nil
}

// caller must hold the lock
func (b *Browser) live(el navcheck.ElementHandle) (*Handle, error) {
	h, ok := el.(*Handle)
	if !ok {
		return nil, errors.Errorf("foreign element handle %T", el)
	}
	t := b.tab(h.Context)
	if t == nil || t.generation != h.Generation {
		return nil, errors.Wrap(navcheck.ErrStaleElement, h.String())
	}
	return h, nil
}

// IsVisible unless Hidden
func (b *Browser) IsVisible(ctx context.Context, el navcheck.ElementHandle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("IsVisible")
	h, err := b.live(el)
	if err != nil {
		return false, err
	}
	return !h.Element.Hidden, nil
}

// IsInteractable when visible and not Disabled
func (b *Browser) IsInteractable(ctx context.Context, el navcheck.ElementHandle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("IsInteractable")
	h, err := b.live(el)
	if err != nil {
		return false, err
	}
	return !h.Element.Hidden && !h.Element.Disabled, nil
}

// Click runs the element's OnClick outside of the lock
func (b *Browser) Click(ctx context.Context, el navcheck.ElementHandle) error {
	b.mu.Lock()
	b.record("Click")
	h, err := b.live(el)
	if err == nil && (h.Element.Hidden || h.Element.Disabled) {
		err = errors.Errorf("element %s is not interactable", h)
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if h.Element.OnClick != nil {
		h.Element.OnClick(b, h.Context)
	}
	return nil
}

// ListContexts open tabs, oldest first
func (b *Browser) ListContexts(ctx context.Context) ([]navcheck.ContextHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ListContexts")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.openLocked(), nil
}

// FocusedContext handle
func (b *Browser) FocusedContext(ctx context.Context) (navcheck.ContextHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("FocusedContext")
	t, err := b.focusedTab()
	if err != nil {
		return "", err
	}
	return t.handle, nil
}

// SwitchTo focuses an open tab
func (b *Browser) SwitchTo(ctx context.Context, handle navcheck.ContextHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SwitchTo")
	b.SwitchToCalled = true
	if b.SwitchToFn != nil {
		if err := b.SwitchToFn(handle); err != nil {
			return err
		}
	}
	if b.tab(handle) == nil {
		return errors.Wrapf(navcheck.ErrUnknownContext, "%s", handle)
	}
	b.focused = handle
	return nil
}

// CloseContext closes a tab. Closing the focused tab leaves nothing focused.
func (b *Browser) CloseContext(ctx context.Context, handle navcheck.ContextHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CloseContext")
	b.CloseContextCalled = true
	if b.CloseContextFn != nil {
		if err := b.CloseContextFn(handle); err != nil {
			return err
		}
	}
	t := b.tab(handle)
	if t == nil {
		return errors.Wrapf(navcheck.ErrUnknownContext, "%s", handle)
	}
	t.closed = true
	t.generation++
	if b.focused == handle {
		b.focused = ""
	}
	return nil
}

// CurrentURL of the focused tab
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CurrentURL")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := b.focusedTab()
	if err != nil {
		return "", err
	}
	return t.url(), nil
}

// CurrentOrigin of the focused tab, "null" for opaque origins like about:blank
func (b *Browser) CurrentOrigin(ctx context.Context) (string, error) {
	u, err := b.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	return Origin(u), nil
}

// Origin scheme://host of u, or "null"
func Origin(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || !strings.HasPrefix(parsed.Scheme, "http") {
		return "null"
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Navigate the focused tab
func (b *Browser) Navigate(ctx context.Context, u string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Navigate")
	t, err := b.focusedTab()
	if err != nil {
		return err
	}
	b.load(t, u)
	return nil
}

// NavigateBack one history entry in the focused tab
func (b *Browser) NavigateBack(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("NavigateBack")
	b.NavigateBackCalled = true
	if b.NavigateBackFn != nil {
		if err := b.NavigateBackFn(); err != nil {
			return err
		}
	}
	t, err := b.focusedTab()
	if err != nil {
		return err
	}
	if t.idx == 0 {
		return errors.New("no history entry to go back to")
	}
	t.idx--
	t.generation++
	t.loadedAt = time.Now()
	return nil
}
