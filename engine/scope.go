package engine

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/navcheck"
)

// ScopeService classifies the URLs checks start from and land on. Hosts match
// themselves and their subdomains, so "example.com" covers "www.example.com".
type ScopeService struct {
	target       *url.URL
	allowed      []string
	ignored      []string
	excluded     []string
	excludedURIs []string
}

// NewScopeService with the site under test in scope
func NewScopeService(target *url.URL) *ScopeService {
	s := &ScopeService{
		target:       target,
		allowed:      make([]string, 0),
		ignored:      make([]string, 0),
		excluded:     make([]string, 0),
		excludedURIs: make([]string, 0),
	}
	if target != nil && target.Hostname() != "" {
		s.allowed = append(s.allowed, strings.ToLower(target.Hostname()))
	}
	return s
}

// NewScopeServiceFromConfig applies allowed, ignored and excluded from cfg
func NewScopeServiceFromConfig(cfg *navcheck.Config) *ScopeService {
	var target *url.URL
	if cfg.URL != "" {
		if u, err := url.Parse(cfg.URL); err == nil {
			target = u
		}
	}
	s := NewScopeService(target)
	s.AddScope(cfg.AllowedURLs, navcheck.InScope)
	s.AddScope(cfg.IgnoredURLs, navcheck.OutOfScope)
	hosts := make([]string, 0)
	paths := make([]string, 0)
	for _, e := range cfg.ExcludedURLs {
		if strings.HasPrefix(e, "http") || strings.HasPrefix(e, "/") {
			paths = append(paths, e)
		} else {
			hosts = append(hosts, e)
		}
	}
	s.AddScope(hosts, navcheck.ExcludedFromScope)
	s.AddExcludedURIs(paths)
	return s
}

// AddScope to the scope service
func (s *ScopeService) AddScope(inputs []string, scope navcheck.Scope) {
	if len(inputs) == 0 {
		return
	}
	lowered := mapFunction(inputs, strings.ToLower)

	switch scope {
	case navcheck.InScope:
		s.allowed = append(s.allowed, lowered...)
	case navcheck.OutOfScope:
		s.ignored = append(s.ignored, lowered...)
	case navcheck.ExcludedFromScope:
		s.excluded = append(s.excluded, lowered...)
	}
}

// AddExcludedURIs paths that must never be clicked through to, like logout
func (s *ScopeService) AddExcludedURIs(inputs []string) {
	for _, input := range inputs {
		if strings.HasPrefix(input, "http") {
			u, err := url.Parse(input)
			if err != nil {
				log.Warn().Err(err).Msg("failed to add URI to exclusion list")
				continue
			}
			s.excludedURIs = append(s.excludedURIs, strings.ToLower(u.Path))
		} else {
			s.excludedURIs = append(s.excludedURIs, strings.ToLower(input))
		}
	}
}

// Check a url to see if it's in scope
func (s *ScopeService) Check(uri string) navcheck.Scope {
	lowered := strings.ToLower(uri)
	host := ""
	if s.target != nil {
		host = strings.ToLower(s.target.Hostname())
	}

	switch {
	case strings.HasPrefix(lowered, "http"):
		u, err := url.Parse(lowered)
		if err != nil {
			log.Warn().Err(err).Str("uri", lowered).Msg("failed to parse URI returning out of scope")
			return navcheck.OutOfScope
		}
		host = u.Hostname()
		lowered = u.Path
	case strings.HasPrefix(lowered, "//"):
		u, err := url.Parse("http:" + lowered)
		if err != nil {
			log.Warn().Err(err).Str("uri", lowered).Msg("failed to parse URI returning out of scope")
			return navcheck.OutOfScope
		}
		host = u.Hostname()
		lowered = u.Path
	case !strings.HasPrefix(lowered, "/"):
		lowered = "/" + lowered
	}
	return s.CheckRelative(host, lowered)
}

// CheckRelative checks excluded hosts, then ignored hosts, then excluded paths and
// finally allowed hosts, defaulting to out of scope
func (s *ScopeService) CheckRelative(host, relative string) navcheck.Scope {
	host = strings.ToLower(host)
	switch {
	case hostIn(s.excluded, host):
		return navcheck.ExcludedFromScope
	case hostIn(s.ignored, host):
		return navcheck.OutOfScope
	case includeFunction(s.excludedURIs, strings.ToLower(relative)):
		return navcheck.ExcludedFromScope
	case hostIn(s.allowed, host):
		return navcheck.InScope
	}
	return navcheck.OutOfScope
}

func mapFunction(vs []string, f func(string) string) []string {
	vsm := make([]string, len(vs))
	for i, v := range vs {
		vsm[i] = f(v)
	}
	return vsm
}

func includeFunction(vs []string, t string) bool {
	for _, v := range vs {
		if v == t {
			return true
		}
	}
	return false
}

func hostIn(hosts []string, host string) bool {
	if host == "" {
		return false
	}
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
