package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/grafana/netverify/pkg/common"
	"github.com/grafana/netverify/pkg/config"
	"github.com/grafana/netverify/pkg/logging"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/probeflags"
	"github.com/grafana/netverify/pkg/report"
	"github.com/spf13/cobra"
)

var (
	//RootCmd is the root level command that all other commands attach to
	RootCmd = &Command{ // base command
		Command: &cobra.Command{
			Use:   "netverify",
			Short: "Verify the network reachability rules of a sandbox",
			Long: `netverify probes a list of targets (sidecar services, external IPs and
hostnames) and checks each one against what it is expected to do: accept
a connection, answer with a known signature, or be blocked.`,
			SilenceUsage: true,
		},
	}
)

func init() {
	addCommands()
}

type Command struct {
	*cobra.Command
}

func addSharedFlags(cmd *Command) {
	cmd.Flags().Duration(probeflags.ArgTimeout, probe.DefaultTimeout, "Timeout for every blocking step of a probe (connect, read, write).")
	cmd.Flags().String(probeflags.ArgConfig, "", "Path to a YAML configuration file.")
	cmd.Flags().String(probeflags.ArgDNSServer, "", "Resolve names with this DNS server (HOST[:PORT]) instead of the system resolver.")
	cmd.Flags().String(probeflags.ArgKVPassword, "", "Credential sent in the key-value AUTH handshake.")
	cmd.Flags().String(probeflags.ArgLogLevel, "", "Log level: debug, info, warn or error.")
	cmd.Flags().String(probeflags.ArgMetricsTextfile, "", "Write run metrics to this file in the node exporter textfile format.")
}

// AddCommand adds child commands and adds child commands for cobra as well.
func (c *Command) AddCommand(commands ...*Command) {
	for _, cmd := range commands {
		addSharedFlags(cmd)
		c.Command.AddCommand(cmd.Command)
	}
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		if !strings.Contains(err.Error(), "unknown command") {
			fmt.Fprintln(os.Stderr, err)
		}
		common.ExitConfigError()
	}
}

func addCommands() {
	RootCmd.AddCommand(Run())
	RootCmd.AddCommand(Check())
	RootCmd.AddCommand(Pod())
	RootCmd.AddCommand(Interactive())
}

// loadConfig applies, in order: defaults, the --config file, .env, the
// NETVERIFY_* environment and the flags set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	flags := cmd.Flags()

	if path, _ := flags.GetString(probeflags.ArgConfig); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadEnv(".env"); err != nil {
		return cfg, err
	}

	if flags.Changed(probeflags.ArgTimeout) {
		cfg.Timeout, _ = flags.GetDuration(probeflags.ArgTimeout)
	}
	if flags.Changed(probeflags.ArgDNSServer) {
		cfg.DNSServer, _ = flags.GetString(probeflags.ArgDNSServer)
	}
	if flags.Changed(probeflags.ArgKVPassword) {
		cfg.KVPassword, _ = flags.GetString(probeflags.ArgKVPassword)
	}
	if flags.Changed(probeflags.ArgLogLevel) {
		cfg.LogLevel, _ = flags.GetString(probeflags.ArgLogLevel)
	}
	if flags.Changed(probeflags.ArgMetricsTextfile) {
		cfg.MetricsTextfile, _ = flags.GetString(probeflags.ArgMetricsTextfile)
	}

	return cfg, cfg.Validate()
}

// session is what every command needs to probe and report.
type session struct {
	cfg      config.Config
	runID    string
	log      logging.Logger
	reporter *report.Reporter
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &session{
		cfg:      cfg,
		runID:    runID,
		log:      logging.New(cmd.ErrOrStderr(), level).WithRun(runID),
		reporter: report.New(cmd.OutOrStdout(), runID),
	}, nil
}

func (s *session) prober() *probe.Prober {
	return probe.New(s.cfg.ProbeOptions(s.log))
}

// finish prints the summary, writes the metrics textfile if requested and
// returns the exit code of the run.
func (s *session) finish() int {
	summary := s.reporter.Finish()

	if s.cfg.MetricsTextfile != "" {
		if err := s.reporter.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
			s.log.Error("writing metrics", "err", err)
			return common.ExitCodeExecError
		}
		s.log.Debug("metrics written", "path", s.cfg.MetricsTextfile)
	}

	return common.ExitCode(summary.AllPassed())
}
