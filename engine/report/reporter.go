package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"gitlab.com/navcheck/navcheck"
)

var (
	passColor  = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	skipColor  = color.New(color.FgYellow)
	abortColor = color.New(color.FgMagenta, color.Bold)
)

// Reporter keeps the latest result per check name, in the order checks first reported
type Reporter struct {
	mu      sync.Mutex
	order   []string
	results map[string]*navcheck.CheckResult
}

// New reporter
func New() *Reporter {
	return &Reporter{results: make(map[string]*navcheck.CheckResult)}
}

// Add a result, replacing an earlier one for the same check
func (r *Reporter) Add(result *navcheck.CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exist := r.results[result.Name]; !exist {
		r.order = append(r.order, result.Name)
	}
	r.results[result.Name] = result
}

// Results in report order
func (r *Reporter) Results() []*navcheck.CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]*navcheck.CheckResult, 0, len(r.order))
	for _, name := range r.order {
		results = append(results, r.results[name])
	}
	return results
}

// Summary counts per status
type Summary struct {
	Passed  int
	Failed  int
	Skipped int
	Aborted int
}

// Summary of all results
func (r *Reporter) Summary() Summary {
	s := Summary{}
	for _, result := range r.Results() {
		switch result.Status {
		case navcheck.CheckPassed:
			s.Passed++
		case navcheck.CheckFailed:
			s.Failed++
		case navcheck.CheckSkipped:
			s.Skipped++
		case navcheck.CheckAborted:
			s.Aborted++
		}
	}
	return s
}

// Failed if any check failed or aborted
func (r *Reporter) Failed() bool {
	s := r.Summary()
	return s.Failed+s.Aborted > 0
}

func statusColor(s navcheck.CheckStatus) *color.Color {
	switch s {
	case navcheck.CheckPassed:
		return passColor
	case navcheck.CheckSkipped:
		return skipColor
	case navcheck.CheckAborted:
		return abortColor
	}
	return failColor
}

// Print one line per check plus a summary
func (r *Reporter) Print(writer io.Writer) {
	for _, result := range r.Results() {
		statusColor(result.Status).Fprintf(writer, "%-5s", result.Status)
		fmt.Fprintf(writer, " %s (%s)", result.Name, result.Duration.Round(time.Millisecond))
		if result.Target != nil && result.Target.Found() {
			fmt.Fprintf(writer, " via %s", result.Target.Candidate)
		}
		if o := result.Outcome; o != nil {
			fmt.Fprintf(writer, " %s -> %s [%s, %s]", o.Shape, o.ObservedURL, o.Verdict, o.Restore)
		}
		fmt.Fprintln(writer)
		if result.Err != nil && result.Status != navcheck.CheckPassed {
			fmt.Fprintf(writer, "      %s\n", result.Err)
		}
	}
	s := r.Summary()
	fmt.Fprintf(writer, "%d passed, %d failed, %d skipped, %d aborted\n", s.Passed, s.Failed, s.Skipped, s.Aborted)
}
