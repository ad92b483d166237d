package browser

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
)

// LocalLeaser runs chrome as a child process of this one
type LocalLeaser struct {
	browserLock sync.RWMutex
	browsers    map[string]*gcd.Gcd
	chrome      string
	tmp         string
	flags       []string
	killStale   bool
}

// NewLocalLeaser for chrome at chromePath (found on the FS when empty)
func NewLocalLeaser(chromePath string, headless bool) *LocalLeaser {
	chrome, tmp := FindChrome(chromePath)
	return &LocalLeaser{
		browsers: make(map[string]*gcd.Gcd),
		chrome:   chrome,
		tmp:      tmp,
		flags:    StartupFlags(headless),
	}
}

// KillStale makes Cleanup kill every chrome process on the machine, not only ours
func (s *LocalLeaser) KillStale(kill bool) *LocalLeaser {
	s.killStale = kill
	return s
}

// Acquire starts a browser and returns its debug port
func (s *LocalLeaser) Acquire() (string, error) {
	b := gcd.NewChromeDebugger()
	b.DeleteProfileOnExit()

	profileDir, err := randProfile(s.tmp)
	if err != nil {
		return "", err
	}
	port := randPort()

	b.AddFlags(s.flags)
	if err := b.StartProcess(s.chrome, profileDir, port); err != nil {
		return "", errors.Wrapf(err, "starting %s", s.chrome)
	}
	log.Debug().Str("chrome", s.chrome).Str("port", port).Str("profile", filepath.Base(profileDir)).Msg("browser started")

	s.browserLock.Lock()
	s.browsers[port] = b
	s.browserLock.Unlock()
	return port, nil
}

// Count of running browsers
func (s *LocalLeaser) Count() (string, error) {
	s.browserLock.RLock()
	count := len(s.browsers)
	s.browserLock.RUnlock()
	return strconv.Itoa(count), nil
}

// Return kills the browser on port
func (s *LocalLeaser) Return(port string) error {
	s.browserLock.Lock()
	defer s.browserLock.Unlock()

	b, ok := s.browsers[port]
	if !ok {
		return errors.Errorf("browser on port %s not found", port)
	}
	delete(s.browsers, port)
	return b.ExitProcess()
}

// Cleanup kills the browsers we started and removes their profiles
func (s *LocalLeaser) Cleanup() (string, error) {
	s.browserLock.Lock()
	for port, b := range s.browsers {
		if err := b.ExitProcess(); err != nil {
			log.Warn().Err(err).Str("port", port).Msg("failed to exit browser")
		}
		delete(s.browsers, port)
	}
	s.browserLock.Unlock()

	if s.killStale {
		if err := KillOldProcesses("google-chrome", "chrome", "chromium", "chromium-browser"); err != nil {
			return "", err
		}
	}
	if err := RemoveTmpContents(s.tmp); err != nil {
		return "", err
	}
	return "ok", nil
}
