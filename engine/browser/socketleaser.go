package browser

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// SOCK for unix socket comms
const SOCK = "navcheck.sock"

// SocketLeaser asks a leaser process listening on a unix socket for browsers, so chrome
// can run in a separate container from the checks.
type SocketLeaser struct {
	leaserClient http.Client
}

// NewSocketLeaser for browsers, sock defaults to SOCK
func NewSocketLeaser(sock string) *SocketLeaser {
	if sock == "" {
		sock = SOCK
	}
	s := &SocketLeaser{}
	s.leaserClient = http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}
	return s
}

func (s *SocketLeaser) get(path string) (string, error) {
	resp, err := s.leaserClient.Get("http://unix" + path)
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return string(body), nil
	case http.StatusNotFound:
		return "", errors.New("browser not found")
	}
	return "", errors.Errorf("leaser returned %d: %s", resp.StatusCode, string(body))
}

// Acquire a new browser
func (s *SocketLeaser) Acquire() (string, error) {
	return s.get("/acquire")
}

// Count how many browsers
func (s *SocketLeaser) Count() (string, error) {
	return s.get("/count")
}

// Return (and kill) the browser
func (s *SocketLeaser) Return(port string) error {
	_, err := s.get("/return?port=" + url.QueryEscape(port))
	return err
}

// Cleanup all old browser processes, hope you weren't running chrome!
func (s *SocketLeaser) Cleanup() (string, error) {
	return s.get("/cleanup")
}
