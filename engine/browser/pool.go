package browser

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
	"gitlab.com/navcheck/navcheck"
)

// chrome flags for a quiet, deterministic profile. Popups must not be blocked or
// new context navigations can never be observed.
var startupFlags = []string{
	"--enable-automation",
	"--disable-popup-blocking",
	"--disable-background-networking",
	"--disable-default-apps",
	"--disable-extensions",
	"--disable-sync",
	"--disable-gpu",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--no-first-run",
	"--window-size=1280,800",
	"--password-store=basic",
}

// StartupFlags chrome is started with, the initial page is about:blank
func StartupFlags(headless bool) []string {
	flags := make([]string, 0, len(startupFlags)+2)
	flags = append(flags, startupFlags...)
	if headless {
		flags = append(flags, "--headless")
	}
	return append(flags, "about:blank")
}

// revive:exported
var (
	ErrBrowserClosing = errors.New("pool is shutting down")
)

// Pool of started browsers, each Take gets a fresh process
type Pool struct {
	size       int
	leased     int32
	failures   int32
	slots      chan *gcd.Gcd
	stopping   int32
	leaser     LeaserService
	generation int32
	connect    time.Duration
}

// NewPool of maxBrowsers browsers leased from leaser
func NewPool(maxBrowsers int, leaser LeaserService) *Pool {
	if maxBrowsers <= 0 {
		maxBrowsers = 1
	}
	return &Pool{
		size:    maxBrowsers,
		leaser:  leaser,
		slots:   make(chan *gcd.Gcd, maxBrowsers),
		connect: 10 * time.Second,
	}
}

// Init cleans up after earlier runs and starts the browsers
func (p *Pool) Init(ctx context.Context) error {
	if _, err := p.leaser.Cleanup(); err != nil {
		return errors.Wrap(err, "cleaning up browsers")
	}
	return p.Start(ctx)
}

// Start fills every slot with a fresh browser
func (p *Pool) Start(ctx context.Context) error {
	log.Ctx(ctx).Info().Int("browsers", p.size).Msg("creating browsers")
	p.slots = make(chan *gcd.Gcd, p.size)

	gen := atomic.AddInt32(&p.generation, 1)
	for i := 0; i < p.size; i++ {
		p.recycle(ctx, nil, gen) // nil just creates a new one
	}
	atomic.StoreInt32(&p.stopping, 0)
	return nil
}

// Acquire a browser unless ctx expires first
func (p *Pool) Acquire(ctx context.Context) *gcd.Gcd {
	select {
	case proc := <-p.slots:
		if proc != nil {
			atomic.AddInt32(&p.leased, 1)
		}
		return proc
	case <-ctx.Done():
		log.Ctx(ctx).Warn().Err(ctx.Err()).Msg("failed to acquire browser from pool")
		atomic.AddInt32(&p.failures, 1)
		return nil
	}
}

func (p *Pool) recycle(ctx context.Context, proc *gcd.Gcd, gen int32) {
	connectCtx, cancel := context.WithTimeout(ctx, p.connect)
	defer cancel()
	doneCh := make(chan struct{})

	go p.replace(proc, doneCh, gen)

	select {
	case <-connectCtx.Done():
		log.Ctx(ctx).Error().Msg("failed to replace browser in time")
	case <-doneCh:
	}
}

// replace returns proc to the leaser (if set) and leases a new browser into a slot, closing
// doneCh when finished. A nil browser fills the slot when starting failed.
func (p *Pool) replace(proc *gcd.Gcd, doneCh chan struct{}, gen int32) {
	defer close(doneCh)
	if proc != nil {
		if err := p.leaser.Return(proc.Port()); err != nil {
			log.Error().Err(err).Msg("failed to return browser")
		}
		atomic.AddInt32(&p.leased, -1)
	}

	// restarted or closing while this one was leased, don't replace it
	if atomic.LoadInt32(&p.generation) != gen || atomic.LoadInt32(&p.stopping) == 1 {
		return
	}

	port, err := p.leaser.Acquire()
	if err != nil {
		log.Warn().Err(err).Msg("unable to acquire new browser")
		p.slots <- nil
		return
	}

	proc = gcd.NewChromeDebugger()
	if err := proc.ConnectToInstance("localhost", port); err != nil {
		log.Warn().Err(err).Str("port", port).Msg("failed to connect to instance")
		if err := p.leaser.Return(port); err != nil {
			log.Warn().Err(err).Msg("failed to return unconnected browser")
		}
		proc = nil
	}
	p.slots <- proc
}

// Take a browser, the caller must Return it.
func (p *Pool) Take(ctx context.Context) (*gcd.Gcd, error) {
	if atomic.LoadInt32(&p.stopping) == 1 {
		return nil, ErrBrowserClosing
	}
	proc := p.Acquire(ctx)
	if proc == nil {
		return nil, errors.New("browser acquisition failed during Take")
	}
	log.Ctx(ctx).Info().Int32("acquired", atomic.LoadInt32(&p.leased)).Int32("errors", atomic.LoadInt32(&p.failures)).Msg("acquired browser")
	return proc, nil
}

// Return a browser for destruction, a fresh one replaces it
func (p *Pool) Return(ctx context.Context, proc *gcd.Gcd) {
	gen := atomic.LoadInt32(&p.generation)
	log.Ctx(ctx).Info().Msg("closing browser")
	p.recycle(ctx, proc, gen)
}

// Open takes a browser and wraps it in a Driver that returns it on Close. Its signature
// matches engine.DriverOpener.
func (p *Pool) Open(ctx context.Context, cfg *navcheck.Config) (navcheck.Driver, error) {
	proc, err := p.Take(ctx)
	if err != nil {
		return nil, err
	}
	d, err := NewDriver(ctx, proc)
	if err != nil {
		p.Return(ctx, proc)
		return nil, err
	}
	d.SetPollInterval(cfg.PollInterval.D())
	d.SetNavigationTimeout(cfg.NavigationTimeout.D())
	d.onClose = func() error {
		p.Return(context.Background(), proc)
		return nil
	}
	return d, nil
}

// Close all browsers and return
func (p *Pool) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.stopping, 0, 1) {
		return nil
	}
	defer p.leaser.Cleanup()

	for len(p.slots) > 0 {
		proc := p.Acquire(ctx)
		if proc != nil {
			if err := p.leaser.Return(proc.Port()); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("failed to return browser")
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
