package clicmds

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gitlab.com/navcheck/engine"
	"gitlab.com/navcheck/engine/browser"
	"gitlab.com/navcheck/engine/cdp"
	"gitlab.com/navcheck/navcheck"
)

func driverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "driver",
			Usage: "browser driver, gcd or chromedp",
		},
		&cli.StringFlag{
			Name:  "chrome",
			Usage: "path to the chrome binary",
		},
		&cli.BoolFlag{
			Name:  "show",
			Usage: "run chrome with a window instead of headless",
			Value: false,
		},
	}
}

// applyDriverFlags over the config, flags win
func applyDriverFlags(ctx *cli.Context, cfg *navcheck.Config) {
	if ctx.String("driver") != "" {
		cfg.Driver = ctx.String("driver")
	}
	if ctx.String("chrome") != "" {
		cfg.ChromePath = ctx.String("chrome")
	}
	if ctx.Bool("show") {
		cfg.Headless = false
	}
}

// Opener for the configured driver, close releases whatever it started
func Opener(ctx context.Context, cfg *navcheck.Config) (engine.DriverOpener, func(), error) {
	switch cfg.Driver {
	case navcheck.DriverChromeDP:
		return cdp.Open, func() {}, nil
	case navcheck.DriverGCD, "":
		var leaser browser.LeaserService
		switch cfg.Leaser {
		case navcheck.LeaserSocket:
			leaser = browser.NewSocketLeaser("")
		default:
			leaser = browser.NewLocalLeaser(cfg.ChromePath, cfg.Headless)
		}
		pool := browser.NewPool(1, leaser)
		if err := pool.Init(ctx); err != nil {
			return nil, nil, errors.Wrap(err, "starting browser pool")
		}
		return pool.Open, func() { pool.Close(context.Background()) }, nil
	}
	return nil, nil, errors.Wrap(navcheck.ErrUnknownDriver, cfg.Driver)
}

// ParseLocators reads kind=query pairs
func ParseLocators(values []string) ([]navcheck.LocatorConfig, error) {
	locators := make([]navcheck.LocatorConfig, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("locator %q is not kind=query", v)
		}
		locators = append(locators, navcheck.LocatorConfig{Kind: parts[0], Query: parts[1]})
	}
	return locators, nil
}
