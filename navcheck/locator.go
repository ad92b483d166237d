package navcheck

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SelectorKind is the strategy used to interpret a selector query
type SelectorKind int8

// revive:exported
const (
	ByCSS SelectorKind = iota + 1
	ByID
	ByName
	ByXPath
	ByLinkText
	ByPartialLinkText
	ByClassName
	ByTagName
	ByText
)

var selectorKindMap = map[SelectorKind]string{
	ByCSS:             "css",
	ByID:              "id",
	ByName:            "name",
	ByXPath:           "xpath",
	ByLinkText:        "link_text",
	ByPartialLinkText: "partial_link_text",
	ByClassName:       "class",
	ByTagName:         "tag",
	ByText:            "text",
}

func (k SelectorKind) String() string {
	if s, ok := selectorKindMap[k]; ok {
		return s
	}
	return "unknown"
}

// ParseSelectorKind from its config name
func ParseSelectorKind(name string) (SelectorKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, v := range selectorKindMap {
		if v == name {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidSelector, "unknown selector kind %q", name)
}

// Selector is a single candidate descriptor
type Selector struct {
	Kind  SelectorKind
	Query string
}

// CSS selector
func CSS(query string) Selector { return Selector{Kind: ByCSS, Query: query} }

// ID attribute selector
func ID(id string) Selector { return Selector{Kind: ByID, Query: id} }

// Name attribute selector
func Name(name string) Selector { return Selector{Kind: ByName, Query: name} }

// XPath selector
func XPath(query string) Selector { return Selector{Kind: ByXPath, Query: query} }

// LinkText matches anchors whose trimmed text equals text
func LinkText(text string) Selector { return Selector{Kind: ByLinkText, Query: text} }

// PartialLinkText matches anchors whose text contains text
func PartialLinkText(text string) Selector { return Selector{Kind: ByPartialLinkText, Query: text} }

// ClassName selector
func ClassName(class string) Selector { return Selector{Kind: ByClassName, Query: class} }

// TagName selector
func TagName(tag string) Selector { return Selector{Kind: ByTagName, Query: tag} }

// Text matches any element whose normalized own text equals text
func Text(text string) Selector { return Selector{Kind: ByText, Query: text} }

func (s Selector) String() string {
	return s.Kind.String() + "=" + s.Query
}

// Validate the selector has a known kind and a query
func (s Selector) Validate() error {
	if _, ok := selectorKindMap[s.Kind]; !ok {
		return errors.Wrapf(ErrInvalidSelector, "kind %d", s.Kind)
	}
	if strings.TrimSpace(s.Query) == "" {
		return errors.Wrapf(ErrInvalidSelector, "empty %s query", s.Kind)
	}
	return nil
}

// LocatorSpec is the ordered list of candidates for one logical target. The first
// candidate that resolves wins, so order is priority.
type LocatorSpec struct {
	name       string
	candidates []Selector
}

// NewLocatorSpec requires at least one valid candidate.
func NewLocatorSpec(name string, candidates ...Selector) (*LocatorSpec, error) {
	if len(candidates) == 0 {
		return nil, errors.Wrap(ErrEmptyLocator, name)
	}
	c := make([]Selector, len(candidates))
	for i, sel := range candidates {
		if err := sel.Validate(); err != nil {
			return nil, errors.Wrapf(err, "%s candidate %d", name, i)
		}
		c[i] = sel
	}
	return &LocatorSpec{name: name, candidates: c}, nil
}

// MustLocatorSpec panics on an invalid spec, for package level definitions
func MustLocatorSpec(name string, candidates ...Selector) *LocatorSpec {
	spec, err := NewLocatorSpec(name, candidates...)
	if err != nil {
		panic(err)
	}
	return spec
}

// Name of the logical target
func (l *LocatorSpec) Name() string {
	return l.name
}

// Len number of candidates
func (l *LocatorSpec) Len() int {
	return len(l.candidates)
}

// Candidate at priority i
func (l *LocatorSpec) Candidate(i int) Selector {
	return l.candidates[i]
}

// Candidates returns a copy in priority order
func (l *LocatorSpec) Candidates() []Selector {
	c := make([]Selector, len(l.candidates))
	copy(c, l.candidates)
	return c
}

func (l *LocatorSpec) String() string {
	parts := make([]string, len(l.candidates))
	for i, c := range l.candidates {
		parts[i] = c.String()
	}
	return l.name + "[" + strings.Join(parts, ", ") + "]"
}

// CandidateAttempt records how one candidate fared during resolution
type CandidateAttempt struct {
	Candidate Selector
	Attempted bool
	Polls     int
	Elapsed   time.Duration
	LastErr   error
}

// ResolvedTarget is the result of resolving a LocatorSpec. Element is nil when nothing resolved.
type ResolvedTarget struct {
	Spec      *LocatorSpec
	Element   ElementHandle
	Candidate Selector
	Index     int // priority index of the winning candidate, -1 if not found
	Attempts  []CandidateAttempt
	Elapsed   time.Duration
	Cancelled bool
}

// Found if a candidate resolved
func (r *ResolvedTarget) Found() bool {
	return r != nil && r.Element != nil
}

// Err returns a *NotFoundErr if nothing resolved, nil otherwise
func (r *ResolvedTarget) Err() error {
	if r.Found() {
		return nil
	}
	return &NotFoundErr{Spec: r.Spec, Attempts: r.Attempts, Elapsed: r.Elapsed, Cancelled: r.Cancelled}
}
