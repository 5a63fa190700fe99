package probeflags

import (
	"fmt"
	"strconv"
	"time"

	"github.com/grafana/netverify/pkg/probe"
)

// Probe arguments -- can be Flagified
const (
	ArgHost      = "host"
	ArgPort      = "port"
	ArgKind      = "kind"
	ArgExpect    = "expect"
	ArgSignature = "signature"
	ArgTimeout   = "timeout"
)

// Shared arguments of every command
const (
	ArgConfig          = "config"
	ArgDNSServer       = "dns-server"
	ArgKVPassword      = "kv-password"
	ArgLogLevel        = "log-level"
	ArgMetricsTextfile = "metrics-textfile"
)

func Flagify(flag string) string {
	return fmt.Sprintf("--%s", flag)
}

// Args renders t as the arguments of a single target check, so it can be
// probed by another process.
func Args(t probe.Target, timeout time.Duration) []string {
	args := []string{
		Flagify(ArgHost), t.Host,
		Flagify(ArgPort), strconv.Itoa(t.Port),
		Flagify(ArgKind), t.Kind.String(),
		Flagify(ArgTimeout), timeout.String(),
	}

	switch t.Expect.Mode {
	case probe.ExpectSignature:
		args = append(args, Flagify(ArgSignature), t.Expect.Signature)
	default:
		args = append(args, Flagify(ArgExpect), t.Expect.Mode.String())
	}

	return args
}
