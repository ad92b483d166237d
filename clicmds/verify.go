package clicmds

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/navcheck/engine"
	"gitlab.com/navcheck/engine/report"
	"gitlab.com/navcheck/navcheck"
	"gitlab.com/navcheck/store"
)

// VerifyFlags for the verify command
func VerifyFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "checks to run, toml",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "page to load before the first check, overrides the config",
		},
		&cli.StringFlag{
			Name:  "datadir",
			Usage: "data directory outcomes are stored in",
		},
		&cli.BoolFlag{
			Name:  "nostore",
			Usage: "do not persist outcomes",
			Value: false,
		},
	}, driverFlags()...)
}

// Verify runs every configured check, prints the report and stores the outcomes
func Verify(ctx *cli.Context) error {
	cfg, err := navcheck.LoadConfig(ctx.String("config"))
	if err != nil {
		return err
	}
	if ctx.String("url") != "" {
		cfg.URL = ctx.String("url")
	}
	if ctx.String("datadir") != "" {
		cfg.DataPath = ctx.String("datadir")
	}
	applyDriverFlags(ctx, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open, closeDriver, err := Opener(runCtx, cfg)
	if err != nil {
		return err
	}
	defer closeDriver()

	var outcomes navcheck.OutcomeStore
	if !ctx.Bool("nostore") {
		outcomes = store.NewOutcomeStore(filepath.Join(cfg.DataPath, "outcomes"))
	}
	e := engine.New(cfg, outcomes, open)
	if err := e.Init(runCtx); err != nil {
		log.Error().Err(err).Msg("failed to init engine")
		return err
	}
	log.Info().Str("run_id", e.RunID()).Msg("starting navcheck")

	runErr := e.Run(runCtx)
	if err := e.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to close outcome store")
	}

	rep, ok := e.Reporter().(*report.Reporter)
	if ok {
		rep.Print(ctx.App.Writer)
	}
	if runErr != nil {
		return cli.Exit(errors.Wrap(runErr, "run aborted").Error(), 2)
	}
	if ok && rep.Failed() {
		return cli.Exit("checks failed", 1)
	}
	return nil
}
