package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/navcheck/clicmds"
)

func main() {
	app := cli.NewApp()
	app.Name = "navcheck"
	app.Version = "0.1"
	app.Usage = "Verify that links leaving a site land where they should"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "debug, info, warn or error",
			Value: "info",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		level, err := zerolog.ParseLevel(ctx.String("loglevel"))
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:    "verify",
			Aliases: []string{"v"},
			Usage:   "run the checks in a config",
			Action:  clicmds.Verify,
			Flags:   clicmds.VerifyFlags(),
		},
		{
			Name:    "probe",
			Aliases: []string{"p"},
			Usage:   "resolve one locator on a page",
			Action:  clicmds.Probe,
			Flags:   clicmds.ProbeFlags(),
		},
		{
			Name:   "dbview",
			Usage:  "list stored outcomes",
			Action: clicmds.DBView,
			Flags:  clicmds.DBViewFlags(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("navcheck failed")
	}
}
