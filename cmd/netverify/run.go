package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grafana/netverify/pkg/common"
	"github.com/grafana/netverify/pkg/logging"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/report"
	"github.com/grafana/netverify/pkg/targets"
	"github.com/spf13/cobra"
)

// source says where the targets of a command come from.
type source struct {
	file string
	plan string
}

func (s *source) addFlags(cmd *Command) {
	cmd.Flags().StringVarP(&s.file, "file", "f", "", "Target list in the line format, - for stdin (default).")
	cmd.Flags().StringVar(&s.plan, "plan", "", "Target plan in YAML.")
	cmd.MarkFlagsMutuallyExclusive("file", "plan")
}

// targetSet is the parsed content of a source.
type targetSet struct {
	name, description string
	entries           []targets.Entry
	skipped           []error
}

func (s source) load(stdin io.Reader, parser targets.Parser) (targetSet, error) {
	if s.plan != "" {
		f, err := os.Open(s.plan)
		if err != nil {
			return targetSet{}, fmt.Errorf("opening plan: %w", err)
		}
		defer f.Close() //nolint:errcheck

		plan, err := targets.ParsePlan(f)
		if err != nil {
			return targetSet{}, fmt.Errorf("parsing plan %s: %w", s.plan, err)
		}

		entries, skipped := plan.Entries()
		return targetSet{
			name:        plan.Name,
			description: plan.Description,
			entries:     entries,
			skipped:     skipped,
		}, nil
	}

	r := stdin
	name := "stdin"
	if s.file != "" && s.file != "-" {
		f, err := os.Open(s.file)
		if err != nil {
			return targetSet{}, fmt.Errorf("opening target list: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r, name = f, s.file
	}

	entries, skipped, err := parser.Parse(r)
	if err != nil {
		return targetSet{}, fmt.Errorf("reading %s: %w", name, err)
	}

	return targetSet{name: name, entries: entries, skipped: skipped}, nil
}

// Run returns the run command
func Run() *Command {
	var src source

	cmd := &Command{
		Command: &cobra.Command{
			Use:   "run [-f FILE|-] [--plan FILE]",
			Short: "Probe every target of a list or plan",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				common.Exit(runTargetsCmd(cmd, src))
			},
		},
	}
	src.addFlags(cmd)

	return cmd
}

func runTargetsCmd(cmd *cobra.Command, src source) int {
	s, err := newSession(cmd)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeConfigError
	}

	set, err := src.load(cmd.InOrStdin(), s.cfg.Parser())
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeConfigError
	}

	s.reporter.Start(set.name, set.description)
	runTargets(cmd.Context(), s.prober(), s.reporter, set, s.log)

	return s.finish()
}

// runTargets probes every entry in order. Once ctx is done the remaining
// entries are recorded as failed without being probed.
func runTargets(ctx context.Context, p *probe.Prober, r *report.Reporter, set targetSet, log logging.Logger) {
	for _, err := range set.skipped {
		log.Warn("skipping malformed record", "err", err)
		r.Skipped(err)
	}

	for _, e := range set.entries {
		if err := ctx.Err(); err != nil {
			r.Record(e.Name, probe.Outcome{Target: e.Target, State: probe.StateParsed, Err: err})
			continue
		}

		log.Info("probing", "name", e.Name, "target", e.Target.Addr())
		r.Record(e.Name, p.Probe(ctx, e.Target))
	}
}
