package mock

import (
	"time"

	"gitlab.com/navcheck/navcheck"
)

// OpensTab opens u in a new background tab when clicked, like target=_blank
func OpensTab(u string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		b.OpenTab(u)
	}
}

// OpensTabAfter opens u in a new tab after a delay
func OpensTabAfter(d time.Duration, u string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		b.After(d, func() { b.OpenTab(u) })
	}
}

// OpensTabRedirect opens about:blank first and loads final after a delay, like a
// window.open followed by a redirect
func OpensTabRedirect(d time.Duration, final string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		handle := b.OpenTab("about:blank")
		b.After(d, func() { b.Load(handle, final) })
	}
}

// OpensTabs opens every url in its own tab, in order
func OpensTabs(urls ...string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		for _, u := range urls {
			b.OpenTab(u)
		}
	}
}

// GoesTo navigates the tab that was clicked in
func GoesTo(u string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		b.Load(from, u)
	}
}

// GoesToAfter navigates the clicked tab after a delay
func GoesToAfter(d time.Duration, u string) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		b.After(d, func() { b.Load(from, u) })
	}
}

// Reveals un-hides other elements, like a burger menu
func Reveals(elements ...*Element) func(b *Browser, from navcheck.ContextHandle) {
	return func(b *Browser, from navcheck.ContextHandle) {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, el := range elements {
			el.Hidden = false
		}
	}
}

// Link is an anchor matched by each of sels that runs onClick
func Link(label string, onClick func(b *Browser, from navcheck.ContextHandle), sels ...navcheck.Selector) *Element {
	return &Element{Label: label, Matches: sels, OnClick: onClick}
}
