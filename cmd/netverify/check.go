package main

import (
	"github.com/grafana/netverify/pkg/common"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/probeflags"
	"github.com/grafana/netverify/pkg/targets"
	"github.com/spf13/cobra"
)

type checkFlags struct {
	host      string
	port      int
	kind      string
	expect    string
	signature string
}

// Check returns the check command, which probes a single target. It is
// also what runs inside a pod's ephemeral container.
func Check() *Command {
	var f checkFlags

	cmd := &Command{
		Command: &cobra.Command{
			Use:   "check --host HOST --port PORT",
			Short: "Probe a single target",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				common.Exit(checkCmd(cmd, f))
			},
		},
	}

	cmd.Flags().StringVar(&f.host, probeflags.ArgHost, "", "Host name or IP address to probe.")
	cmd.Flags().IntVar(&f.port, probeflags.ArgPort, 0, "TCP port to probe.")
	cmd.Flags().StringVar(&f.kind, probeflags.ArgKind, "url", "Target kind: sidecar, ip or url.")
	cmd.Flags().StringVar(&f.expect, probeflags.ArgExpect, "connect", "Expected result: connect or block.")
	cmd.Flags().StringVar(&f.signature, probeflags.ArgSignature, "", "Expect an HTTP response containing this text.")
	cmd.MarkFlagRequired(probeflags.ArgHost) //nolint:errcheck
	cmd.MarkFlagRequired(probeflags.ArgPort) //nolint:errcheck
	cmd.MarkFlagsMutuallyExclusive(probeflags.ArgExpect, probeflags.ArgSignature)

	return cmd
}

func (f checkFlags) target() (probe.Target, error) {
	kind, err := targets.ParseKind(f.kind)
	if err != nil {
		return probe.Target{}, err
	}

	expect, err := targets.ParseExpectation(f.expect)
	if err != nil {
		return probe.Target{}, err
	}
	if f.signature != "" {
		expect = probe.Signature(f.signature)
	}

	t := probe.Target{Kind: kind, Host: f.host, Port: f.port, Expect: expect}
	if err := t.Validate(); err != nil {
		return probe.Target{}, err
	}
	return t, nil
}

func checkCmd(cmd *cobra.Command, f checkFlags) int {
	s, err := newSession(cmd)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeConfigError
	}

	t, err := f.target()
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeConfigError
	}

	s.reporter.Start("", "")
	s.reporter.Record(t.Addr(), s.prober().Probe(cmd.Context(), t))

	return s.finish()
}
