package clicmds

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/navcheck/navcheck"
	"gitlab.com/navcheck/store"
)

// DBViewFlags for the dbview command
func DBViewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "datadir",
			Usage: "data directory",
			Value: "navchecktmp",
		},
		&cli.StringFlag{
			Name:  "run",
			Usage: "print the outcomes of this run, lists runs when empty",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "max outcomes to print",
			Value: 1000,
		},
	}
}

// DBView prints stored runs or the outcomes of one run
func DBView(ctx *cli.Context) error {
	outcomes := store.NewOutcomeStore(filepath.Join(ctx.String("datadir"), "outcomes"))
	if err := outcomes.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init database for viewing")
		return err
	}
	defer outcomes.Close()

	w := ctx.App.Writer
	if ctx.String("run") == "" {
		runs, err := outcomes.Runs()
		if err != nil {
			return err
		}
		printRuns(w, runs)
		return nil
	}

	results, err := outcomes.Outcomes(ctx.String("run"), ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no outcomes stored for run %s", ctx.String("run"))
	}
	fmt.Fprintf(w, "Had %d outcomes\n", len(results))
	for _, o := range results {
		printOutcome(w, o)
	}
	return nil
}

func printRuns(w io.Writer, runs map[string]int) {
	ids := make([]string, 0, len(runs))
	for id := range runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "Had %d runs\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "%s %d outcomes\n", id, runs[id])
	}
}

func printOutcome(w io.Writer, o *navcheck.NavigationOutcome) {
	fmt.Fprintf(w, "%s %s expected=%s shape=%s verdict=%s restore=%s scope=%s\n",
		o.Started.Format(time.RFC3339), o.Label, o.Expected, o.Shape, o.Verdict, o.Restore, o.Scope)
	fmt.Fprintf(w, "  %s -> %s (%s)\n", o.StartURL, o.ObservedURL, o.Elapsed.Round(time.Millisecond))
	if o.Diagnostic != "" {
		fmt.Fprintf(w, "  %s\n", o.Diagnostic)
	}
}
