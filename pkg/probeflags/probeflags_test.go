package probeflags

import (
	"flag"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/grafana/netverify/pkg/probe"
)

func TestFlagify(t *testing.T) {
	testArg := "test"
	var test bool
	flag.BoolVar(&test, testArg, true, "Testing")
	flagified := Flagify(testArg)
	os.Args = []string{flagified}
	flag.Parse()

	if !test {
		t.Errorf("Expected --test to be set, got these args: %v", os.Args)
	}

}

func TestArgs(t *testing.T) {
	tests := map[string]struct {
		target probe.Target
		exp    []string
	}{
		"block": {
			probe.Target{Kind: probe.KindExternalIP, Host: "8.8.8.8", Port: 443, Expect: probe.MustBlock()},
			[]string{"--host", "8.8.8.8", "--port", "443", "--kind", "ip", "--timeout", "5s", "--expect", "block"},
		},
		"connect": {
			probe.Target{Kind: probe.KindSidecar, Host: "redis", Port: 6379, Expect: probe.MustConnect()},
			[]string{"--host", "redis", "--port", "6379", "--kind", "sidecar", "--timeout", "5s", "--expect", "connect"},
		},
		"signature": {
			probe.Target{Kind: probe.KindSidecar, Host: "env-cpp", Port: 8080, Expect: probe.Signature("Hello from C++ File!")},
			[]string{"--host", "env-cpp", "--port", "8080", "--kind", "sidecar", "--timeout", "5s", "--signature", "Hello from C++ File!"},
		},
	}

	for n, tt := range tests {
		t.Run(n, func(t *testing.T) {
			got := Args(tt.target, 5*time.Second)
			if !slices.Equal(tt.exp, got) {
				t.Fatalf("expecting %q, got %q", tt.exp, got)
			}
		})
	}
}
