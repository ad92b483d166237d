package clicmds

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/navcheck/engine/locate"
	"gitlab.com/navcheck/navcheck"
)

// ProbeFlags for the probe command
func ProbeFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Usage:    "page to probe",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:     "locator",
			Usage:    "kind=query candidate, repeat in priority order",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "time allowed per candidate",
			Value: navcheck.DefaultCandidateTimeout,
		},
		&cli.BoolFlag{
			Name:  "present",
			Usage: "only require the element to exist, not to be interactable",
			Value: false,
		},
	}, driverFlags()...)
}

// Probe resolves one locator spec on a page and prints which candidate won
func Probe(ctx *cli.Context) error {
	locators, err := ParseLocators(ctx.StringSlice("locator"))
	if err != nil {
		return err
	}
	spec, err := navcheck.LocatorSpecFromConfig("probe", locators)
	if err != nil {
		return err
	}

	cfg := navcheck.DefaultConfig()
	applyDriverFlags(ctx, cfg)
	runCtx := context.Background()

	open, closeDriver, err := Opener(runCtx, cfg)
	if err != nil {
		return err
	}
	defer closeDriver()
	driver, err := open(runCtx, cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	if err := driver.Navigate(runCtx, ctx.String("url")); err != nil {
		return err
	}

	resolver := locate.New(driver, cfg.PollInterval.D())
	var target *navcheck.ResolvedTarget
	if ctx.Bool("present") {
		target = resolver.ResolvePresent(runCtx, spec, ctx.Duration("timeout"))
	} else {
		target = resolver.Resolve(runCtx, spec, ctx.Duration("timeout"))
	}
	PrintTarget(ctx.App.Writer, target)
	log.Debug().Dur("elapsed", target.Elapsed).Msg("probe finished")
	if !target.Found() {
		return cli.Exit(target.Err().Error(), 1)
	}
	return nil
}

// PrintTarget lists every candidate and how it fared
func PrintTarget(w io.Writer, target *navcheck.ResolvedTarget) {
	for i, attempt := range target.Attempts {
		status := "-"
		c := color.New(color.FgHiBlack)
		switch {
		case target.Found() && i == target.Index:
			status = "WON"
			c = color.New(color.FgGreen)
		case attempt.Attempted:
			status = "MISS"
			c = color.New(color.FgRed)
		}
		c.Fprintf(w, "%-4s", status)
		fmt.Fprintf(w, " %d %s (%d polls)\n", i, attempt.Candidate, attempt.Polls)
	}
	fmt.Fprintf(w, "resolved in %s\n", target.Elapsed.Round(time.Millisecond))
}
