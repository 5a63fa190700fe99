package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
)

// isTerminal reports whether w writes to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Summary counts the targets of a run.
type Summary struct {
	Total  int
	Passed int
}

func (s Summary) Failed() int { return s.Total - s.Passed }

func (s Summary) AllPassed() bool { return s.Passed == s.Total }

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d tests passed", s.Passed, s.Total)
}

// Result is a judged target that did not run in this process, such as a
// probe executed inside a pod.
type Result struct {
	Name           string
	Kind           probe.Kind
	Passed         bool
	Classification string
	Detail         string
	Duration       time.Duration
}

// Reporter prints a trace of every judged target and keeps the run
// summary. It is not safe for concurrent use.
type Reporter struct {
	w        io.Writer
	runID    string
	summary  Summary
	registry *prometheus.Registry
	metrics  *Metrics

	pass, fail *color.Color
}

// New returns a Reporter writing to w. Labels are coloured only when w is a
// terminal and color.NoColor is unset.
func New(w io.Writer, runID string) *Reporter {
	reg := prometheus.NewRegistry()
	r := &Reporter{
		w:        w,
		runID:    runID,
		registry: reg,
		metrics:  newMetrics(reg),
		pass:     color.New(color.FgGreen, color.Bold),
		fail:     color.New(color.FgRed, color.Bold),
	}
	if !isTerminal(w) {
		r.pass.DisableColor()
		r.fail.DisableColor()
	}
	return r
}

func (r *Reporter) indentf(level int, format string, a ...any) {
	fmt.Fprint(r.w, strings.Repeat("  ", level))
	fmt.Fprintf(r.w, format, a...)
	fmt.Fprintln(r.w)
}

// Start prints the run header.
func (r *Reporter) Start(name, description string) {
	r.indentf(0, "Run: %s", r.runID)
	if name != "" {
		r.indentf(0, "Test Plan: %s", name)
	}
	if description != "" {
		r.indentf(0, "Description: %s", description)
	}
	fmt.Fprintln(r.w)
}

// Skipped prints a record that never became a target. It does not count
// towards the summary.
func (r *Reporter) Skipped(err error) {
	r.indentf(1, "Skipped: %v", err)
}

// Record judges o, prints its trace and returns whether it passed.
func (r *Reporter) Record(name string, o probe.Outcome) bool {
	passed := probe.Judge(o)

	r.indentf(1, "Target: %s", name)
	r.indentf(2, "Address: %s", o.Target.Addr())
	r.indentf(2, "Kind: %s", o.Target.Kind)
	r.indentf(2, "Expect: %s", o.Target.Expect)
	r.indentf(2, "State: %s", o.State)
	if o.Verifier != "" {
		r.indentf(2, "Verifier: %s", o.Verifier)
	}
	if o.Detail != "" {
		r.indentf(2, "Detail: %s", o.Detail)
	}
	if o.Err != nil {
		r.indentf(2, "Reason: %s (%v)", o.Reason(), o.Err)
	}

	r.result(passed, o.Classification())
	r.count(o.Target.Kind.String(), passed, o.Duration)
	return passed
}

// RecordResult adds an already judged result.
func (r *Reporter) RecordResult(res Result) bool {
	r.indentf(1, "Target: %s", res.Name)
	if res.Detail != "" {
		r.indentf(2, "Detail: %s", res.Detail)
	}

	r.result(res.Passed, res.Classification)
	r.count(res.Kind.String(), res.Passed, res.Duration)
	return res.Passed
}

func (r *Reporter) result(passed bool, classification string) {
	label := r.fail.Sprint("[FAIL]")
	if passed {
		label = r.pass.Sprint("[PASS]")
	}
	r.indentf(2, "Result: %s %s", label, classification)
	fmt.Fprintln(r.w)
}

func (r *Reporter) count(kind string, passed bool, d time.Duration) {
	r.summary.Total++
	if passed {
		r.summary.Passed++
	}
	r.metrics.observe(kind, passed, d.Seconds())
}

func (r *Reporter) Summary() Summary { return r.summary }

// Finish prints the summary line and returns the summary.
func (r *Reporter) Finish() Summary {
	ratio := 1.0
	if r.summary.Total > 0 {
		ratio = float64(r.summary.Passed) / float64(r.summary.Total)
	}
	r.metrics.PassedRatio.Set(ratio)

	fmt.Fprintln(r.w, r.summary)
	return r.summary
}

func (r *Reporter) Metrics() *Metrics { return r.metrics }

// WriteTextfile writes the run metrics in the node exporter textfile
// format.
func (r *Reporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
