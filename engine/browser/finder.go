package browser

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var linuxChromes = []string{
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
}

// FindChrome on the FS, override wins when set. Returns the binary and the directory
// profiles are created under.
func FindChrome(override string) (string, string) {
	tmp := filepath.Join(os.TempDir(), "navcheck")
	if override != "" {
		return override, tmp
	}
	switch runtime.GOOS {
	case "windows":
		return "C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe", "C:\\Temp\\navcheck\\"
	case "darwin":
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", tmp
	case "linux":
		for _, chrome := range linuxChromes {
			if _, err := os.Stat(chrome); err == nil {
				return chrome, tmp
			}
		}
		if chrome, err := exec.LookPath("chromium"); err == nil {
			return chrome, tmp
		}
		return linuxChromes[0], tmp
	}
	return "", "tmp"
}

// FindKill based on OS
func FindKill(browser string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"taskkill", "/IM", browser + ".exe"}
	case "darwin", "linux":
		return []string{"killall", browser}
	}
	return []string{""}
}
