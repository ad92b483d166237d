package navcheck_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/navcheck/navcheck"
)

const sampleConfig = `
url = "https://shop.example.com/"
driver = "chromedp"
headless = true
navigation_timeout = "5s"
allowed = ["example.com"]
excluded = ["/logout"]

[[check]]
name = "facebook"
expect = "facebook.com"
target = [
  { kind = "id", query = "fb-link" },
  { kind = "link_text", query = "Follow us on Facebook" },
]

[[check]]
name = "youtube"
page = "https://shop.example.com/about"
expect = "youtube.com"
timeout = "20s"
optional = true
prepare = [[{ kind = "css", query = "button.cookies" }]]
target = [{ kind = "partial_link_text", query = "YouTube" }]
`

func TestDecodeConfig(t *testing.T) {
	cfg, err := navcheck.DecodeConfig(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("error decoding: %s", err)
	}

	if cfg.Driver != navcheck.DriverChromeDP || cfg.Leaser != navcheck.LeaserLocal {
		t.Fatalf("unexpected driver/leaser: %s %s", cfg.Driver, cfg.Leaser)
	}
	if cfg.NavigationTimeout.D() != 5*time.Second {
		t.Fatalf("expected 5s navigation timeout got %s", cfg.NavigationTimeout.D())
	}
	if cfg.PollInterval.D() != navcheck.DefaultPollInterval {
		t.Fatalf("expected default poll interval got %s", cfg.PollInterval.D())
	}
	if len(cfg.Checks) != 2 {
		t.Fatalf("expected 2 checks got %d", len(cfg.Checks))
	}

	fb := cfg.Checks[0]
	if fb.Timeout.D() != 5*time.Second {
		t.Fatalf("check timeout must default to the navigation timeout, got %s", fb.Timeout.D())
	}
	spec, err := navcheck.LocatorSpecFromConfig(fb.Name, fb.Target)
	if err != nil {
		t.Fatalf("error building spec: %s", err)
	}
	if spec.Len() != 2 || spec.Candidate(1).Kind != navcheck.ByLinkText {
		t.Fatalf("unexpected spec %s", spec)
	}

	yt := cfg.Checks[1]
	if yt.Timeout.D() != 20*time.Second || !yt.Optional || len(yt.Prepare) != 1 {
		t.Fatalf("unexpected youtube check: %#v", yt)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := navcheck.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %s", err)
	}
	if cfg.Driver != navcheck.DriverGCD || !cfg.Headless {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.CandidateTimeout.D() != navcheck.DefaultCandidateTimeout ||
		cfg.DetectTimeout.D() != navcheck.DefaultDetectTimeout ||
		cfg.RestoreTimeout.D() != navcheck.DefaultRestoreTimeout ||
		cfg.MismatchSettle.D() != navcheck.DefaultMismatchSettle {
		t.Fatalf("timeouts not defaulted %#v", cfg)
	}
}

func TestConfigInvalid(t *testing.T) {
	var inputs = []struct {
		name   string
		config string
		errMsg string
	}{
		{"driver", `driver = "selenium"`, "invalid config"},
		{"url", `url = "not a url"`, "invalid config"},
		{"leaser", `leaser = "remote"`, "invalid config"},
		{"check name", "[[check]]\ntarget = [{ kind = \"id\", query = \"x\" }]", "invalid config"},
		{"empty target", "[[check]]\nname = \"x\"\ntarget = []", "invalid config"},
		{"bad kind", "[[check]]\nname = \"x\"\ntarget = [{ kind = \"jquery\", query = \"#x\" }]", "check \"x\" target"},
		{"bad prepare", "[[check]]\nname = \"x\"\nprepare = [[{ kind = \"sizzle\", query = \"b\" }]]\ntarget = [{ kind = \"id\", query = \"x\" }]", "prepare step 0"},
		{"bad duration", `poll_interval = "soon"`, "decoding config"},
	}

	for _, in := range inputs {
		_, err := navcheck.DecodeConfig(strings.NewReader(in.config))
		if err == nil {
			t.Fatalf("%s: expected error", in.name)
		}
		if !strings.Contains(err.Error(), in.errMsg) {
			t.Fatalf("%s: expected %q in %q", in.name, in.errMsg, err)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	if _, err := navcheck.LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "checks.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatalf("error writing config: %s", err)
	}
	cfg, err := navcheck.LoadConfig(path)
	if err != nil {
		t.Fatalf("error loading: %s", err)
	}
	if cfg.URL != "https://shop.example.com/" {
		t.Fatalf("unexpected url %s", cfg.URL)
	}
}

func TestDurationText(t *testing.T) {
	var d navcheck.Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("error parsing: %s", err)
	}
	out, _ := d.MarshalText()
	if d.D() != 90*time.Second || string(out) != "1m30s" {
		t.Fatalf("unexpected duration %s", out)
	}
}
