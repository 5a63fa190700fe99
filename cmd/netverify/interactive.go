package main

import (
	"github.com/grafana/netverify/interactive"
	"github.com/grafana/netverify/pkg/common"
	"github.com/spf13/cobra"
)

func Interactive() *Command {
	var src source

	cmd := &Command{
		Command: &cobra.Command{
			Use:   "interactive [-f FILE] [--plan FILE]",
			Short: "Pick targets from a list and probe them one by one",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				common.Exit(interactiveCmd(cmd, src))
			},
		},
	}
	src.addFlags(cmd)

	return cmd
}

func interactiveCmd(cmd *cobra.Command, src source) int {
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
	for _, err := range set.skipped {
		s.log.Warn("skipping malformed record", "err", err)
	}

	if err := interactive.Run(cmd.Context(), set.entries, s.prober().Probe); err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeExecError
	}

	return common.ExitCodeSuccess
}
