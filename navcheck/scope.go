package navcheck

// Scope of an observed URL relative to the site under test
type Scope int8

const (
	// ScopeUnknown not classified
	ScopeUnknown Scope = iota
	// InScope the site under test
	InScope
	// OutOfScope external, may be visited and verified
	OutOfScope
	// ExcludedFromScope must not be visited (logout links etc)
	ExcludedFromScope
)

func (s Scope) String() string {
	switch s {
	case InScope:
		return "in-scope"
	case OutOfScope:
		return "out-of-scope"
	case ExcludedFromScope:
		return "excluded"
	}
	return "unknown"
}

// ScopeService checks if a url is in scope
type ScopeService interface {
	AddScope(inputs []string, scope Scope)
	AddExcludedURIs(inputs []string)
	Check(uri string) Scope
	CheckRelative(host, relative string) Scope
}
