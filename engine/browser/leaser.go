package browser

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LeaserService starts and kills browser processes, handing out their debug ports
type LeaserService interface {
	Acquire() (string, error) // returns port number
	Return(port string) error
	Cleanup() (string, error)
	Count() (string, error)
}

const profilePrefix = "navcheck"

func randPort() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Warn().Err(err).Msg("unable to get port using default 9022")
		return "9022"
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	return port
}

func randProfile(tmp string) (string, error) {
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return "", errors.Wrap(err, "creating profile root")
	}
	profile, err := os.MkdirTemp(tmp, profilePrefix)
	if err != nil {
		return "", errors.Wrap(err, "creating profile directory")
	}
	if profile == "" || profile == tmp {
		return "", errors.New("profile directory is empty which could delete system files on termination")
	}
	return profile, nil
}

// RemoveTmpContents that the browser created
func RemoveTmpContents(tmp string) error {
	if tmp == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(tmp, profilePrefix+"*"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.RemoveAll(file); err != nil {
			return err
		}
	}
	return nil
}

// KillOldProcesses left behind by earlier runs, by name
func KillOldProcesses(names ...string) error {
	for _, name := range names {
		killer := FindKill(name)
		output, err := exec.Command(killer[0], killer[1:]...).CombinedOutput()
		if err != nil {
			log.Debug().Str("browser", name).Msgf("%s:%s", err.Error(), string(output))
		}
	}
	return nil
}
