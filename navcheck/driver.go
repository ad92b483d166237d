package navcheck

import (
	"context"
	"strconv"
)

// ContextHandle identifies a browsing context (tab/window). Opaque to the core.
type ContextHandle string

// ElementHandle is a reference to a driver owned element. The core never manages its lifetime.
type ElementHandle interface {
	String() string
}

// QueryHandle is the ElementHandle used by the script based drivers: the element is
// the Index'th match of Selector inside Context at the time of the query.
type QueryHandle struct {
	Context  ContextHandle
	Selector Selector
	Index    int
}

func (q *QueryHandle) String() string {
	return string(q.Context) + "/" + q.Selector.String() + "[" + strconv.Itoa(q.Index) + "]"
}

// ElementQuerier finds elements and answers visibility questions about them
type ElementQuerier interface {
	FindCandidates(ctx context.Context, sel Selector) ([]ElementHandle, error)
	IsVisible(ctx context.Context, el ElementHandle) (bool, error)
	IsInteractable(ctx context.Context, el ElementHandle) (bool, error)
}

// ContextSwitcher enumerates, focuses and closes browsing contexts
type ContextSwitcher interface {
	ListContexts(ctx context.Context) ([]ContextHandle, error)
	FocusedContext(ctx context.Context) (ContextHandle, error)
	SwitchTo(ctx context.Context, handle ContextHandle) error
	CloseContext(ctx context.Context, handle ContextHandle) error
	CurrentURL(ctx context.Context) (string, error)
}

// Navigator reads and changes the location of the focused context
type Navigator interface {
	CurrentURL(ctx context.Context) (string, error)
	CurrentOrigin(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
}

// Clicker clicks elements
type Clicker interface {
	Click(ctx context.Context, el ElementHandle) error
}

// Driver is everything the engine needs from a browser automation session.
type Driver interface {
	ElementQuerier
	ContextSwitcher
	Navigator
	Clicker
	ID() int64
	Close() error
}
