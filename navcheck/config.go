package navcheck

import (
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// revive:exported
const (
	DriverGCD      = "gcd"
	DriverChromeDP = "chromedp"

	LeaserLocal  = "local"
	LeaserSocket = "socket"
)

// revive:exported
const (
	DefaultCandidateTimeout  = 10 * time.Second
	DefaultNavigationTimeout = 10 * time.Second
	DefaultPollInterval      = 150 * time.Millisecond
	DefaultDetectTimeout     = 3 * time.Second
	DefaultRestoreTimeout    = 10 * time.Second
	DefaultMismatchSettle    = time.Duration(0) // disabled, mismatches wait out the timeout
)

// Duration decodes "10s" style strings from config files
type Duration time.Duration

// UnmarshalText parses a time.ParseDuration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	*d = Duration(v)
	return nil
}

// MarshalText as a time.Duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D as a time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// LocatorConfig one candidate in a config file
type LocatorConfig struct {
	Kind  string `toml:"kind" validate:"required"`
	Query string `toml:"query" validate:"required"`
}

// Selector converts the config entry
func (l LocatorConfig) Selector() (Selector, error) {
	kind, err := ParseSelectorKind(l.Kind)
	if err != nil {
		return Selector{}, err
	}
	sel := Selector{Kind: kind, Query: l.Query}
	return sel, sel.Validate()
}

// LocatorSpecFromConfig builds an ordered spec from config candidates
func LocatorSpecFromConfig(name string, locators []LocatorConfig) (*LocatorSpec, error) {
	sels := make([]Selector, 0, len(locators))
	for _, l := range locators {
		sel, err := l.Selector()
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		sels = append(sels, sel)
	}
	return NewLocatorSpec(name, sels...)
}

// CheckConfig one check: optionally load a page, click through prepare steps, resolve
// the target and, if Expect is set, verify where clicking it navigates.
type CheckConfig struct {
	Name     string            `toml:"name" validate:"required"`
	Page     string            `toml:"page" validate:"omitempty,url"`
	Prepare  [][]LocatorConfig `toml:"prepare" validate:"dive,min=1,dive"`
	Target   []LocatorConfig   `toml:"target" validate:"required,min=1,dive"`
	Expect   string            `toml:"expect"`
	Timeout  Duration          `toml:"timeout"`
	Optional bool              `toml:"optional"`
}

// Config for navcheck
type Config struct {
	URL               string        `toml:"url" validate:"omitempty,url"`
	Driver            string        `toml:"driver" validate:"oneof=gcd chromedp"`
	ChromePath        string        `toml:"chrome_path"`
	Headless          bool          `toml:"headless"`
	DataPath          string        `toml:"data_path"`
	Leaser            string        `toml:"leaser" validate:"oneof=local socket"`
	CandidateTimeout  Duration      `toml:"candidate_timeout"`
	NavigationTimeout Duration      `toml:"navigation_timeout"`
	PollInterval      Duration      `toml:"poll_interval"`
	DetectTimeout     Duration      `toml:"detect_timeout"`
	RestoreTimeout    Duration      `toml:"restore_timeout"`
	MismatchSettle    Duration      `toml:"mismatch_settle"`
	AllowedURLs       []string      `toml:"allowed"`  // hosts considered the site under test
	IgnoredURLs       []string      `toml:"ignored"`  // external hosts
	ExcludedURLs      []string      `toml:"excluded"` // hosts or paths never visited
	Checks            []CheckConfig `toml:"check" validate:"dive"`
}

// DefaultConfig with every timeout set
func DefaultConfig() *Config {
	cfg := &Config{Headless: true}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverGCD
	}
	if c.Leaser == "" {
		c.Leaser = LeaserLocal
	}
	if c.DataPath == "" {
		c.DataPath = "navchecktmp"
	}
	setDefault(&c.CandidateTimeout, DefaultCandidateTimeout)
	setDefault(&c.NavigationTimeout, DefaultNavigationTimeout)
	setDefault(&c.PollInterval, DefaultPollInterval)
	setDefault(&c.DetectTimeout, DefaultDetectTimeout)
	setDefault(&c.RestoreTimeout, DefaultRestoreTimeout)
	for i := range c.Checks {
		setDefault(&c.Checks[i].Timeout, c.NavigationTimeout.D())
	}
}

func setDefault(d *Duration, v time.Duration) {
	if *d <= 0 {
		*d = Duration(v)
	}
}

var validate = validator.New()

// Validate the config, call after ApplyDefaults
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	for _, check := range c.Checks {
		if _, err := LocatorSpecFromConfig(check.Name, check.Target); err != nil {
			return errors.Wrapf(err, "check %q target", check.Name)
		}
		for i, step := range check.Prepare {
			if _, err := LocatorSpecFromConfig(check.Name, step); err != nil {
				return errors.Wrapf(err, "check %q prepare step %d", check.Name, i)
			}
		}
	}
	return nil
}

// DecodeConfig reads TOML from r, applies defaults and validates
func DecodeConfig(r io.Reader) (*Config, error) {
	cfg := &Config{Headless: true}
	if err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig from a TOML file
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeConfig(f)
}
