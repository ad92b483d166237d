package navcheck

import "time"

// ContextSet is the set of browsing contexts open at one point in time, in driver
// order (oldest first).
type ContextSet struct {
	Handles    []ContextHandle
	Focused    ContextHandle
	FocusedURL string
	TakenAt    time.Time
}

// Contains the handle
func (s *ContextSet) Contains(handle ContextHandle) bool {
	if s == nil {
		return false
	}
	for _, h := range s.Handles {
		if h == handle {
			return true
		}
	}
	return false
}

// Len of the set
func (s *ContextSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Handles)
}

// ContextDelta between two snapshots. Added keeps the order of the after snapshot,
// so the last entry is the most recently created context.
type ContextDelta struct {
	Added   []ContextHandle
	Removed []ContextHandle
}

// Empty if nothing was added or removed
func (d ContextDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Newest added context, or "" if none
func (d ContextDelta) Newest() ContextHandle {
	if len(d.Added) == 0 {
		return ""
	}
	return d.Added[len(d.Added)-1]
}

// Diff two snapshots. A handle present in both is never reported as added.
func Diff(before, after *ContextSet) ContextDelta {
	delta := ContextDelta{}
	if after != nil {
		for _, h := range after.Handles {
			if !before.Contains(h) {
				delta.Added = append(delta.Added, h)
			}
		}
	}
	if before != nil {
		for _, h := range before.Handles {
			if !after.Contains(h) {
				delta.Removed = append(delta.Removed, h)
			}
		}
	}
	return delta
}
