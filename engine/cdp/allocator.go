package cdp

import (
	"context"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/navcheck"
)

// AllocatorOptions chrome is started with
func AllocatorOptions(cfg *navcheck.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(1024, 768),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return opts
}

// Open starts chrome and returns a driver focused on its first tab. Its signature
// matches engine.DriverOpener.
func Open(ctx context.Context, cfg *navcheck.Config) (navcheck.Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(cfg)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug().Msgf(format, args...)
	}))

	cleanup := []func(){cancelAlloc, cancelBrowser}
	d, err := NewDriver(ctx, browserCtx)
	if err != nil {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		return nil, errors.Wrap(err, "starting chrome")
	}
	d.cleanup = cleanup
	d.SetNavigationTimeout(cfg.NavigationTimeout.D())
	return d, nil
}
