package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/grafana/netverify/pkg/config"
	"github.com/grafana/netverify/pkg/probe"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestIsPodReady(t *testing.T) {
	t.Run("true", func(t *testing.T) {
		tests := [][]corev1.PodCondition{
			{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
			{
				{Type: corev1.ContainersReady, Status: corev1.ConditionFalse},
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
			{
				{Type: corev1.PodInitialized, Status: corev1.ConditionUnknown},
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		}

		for _, conds := range tests {
			pod := &corev1.Pod{Status: corev1.PodStatus{Conditions: conds}}
			if !isPodReady(pod) {
				t.Error("pod should be ready")
				for _, c := range conds {
					t.Logf("\tType: %s, Status: %s", c.Type, c.Status)
				}
			}
		}
	})

	t.Run("false", func(t *testing.T) {
		tests := [][]corev1.PodCondition{
			{
				{Type: corev1.PodReady, Status: corev1.ConditionFalse},
			},
			{
				{Type: corev1.PodReady, Status: corev1.ConditionUnknown},
			},
			{
				{Type: corev1.ContainersReady, Status: corev1.ConditionTrue},
				{Type: corev1.PodReady, Status: corev1.ConditionFalse},
			},
			{
				{Type: corev1.PodInitialized, Status: corev1.ConditionTrue},
			},
			nil,
		}

		for _, conds := range tests {
			pod := &corev1.Pod{Status: corev1.PodStatus{Conditions: conds}}
			if isPodReady(pod) {
				t.Error("pod should not be ready")
				for _, c := range conds {
					t.Logf("\tType: %s, Status: %s", c.Type, c.Status)
				}
			}
		}
	})
}

func mockPods(ready ...bool) []corev1.Pod {
	pods := make([]corev1.Pod, len(ready))
	for i, r := range ready {
		status := corev1.ConditionFalse
		if r {
			status = corev1.ConditionTrue
		}
		pods[i] = corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Namespace: "sandbox",
				Name:      fmt.Sprintf("pod-%03d", i),
			},
			Status: corev1.PodStatus{
				Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: status}},
			},
		}
	}
	return pods
}

func podNames(pods []*corev1.Pod) []string {
	names := make([]string, len(pods))
	for i, p := range pods {
		names[i] = p.Name
	}
	return names
}

func TestSelectPods(t *testing.T) {
	last := func(n int) int { return n - 1 }

	tests := map[string]struct {
		mode string
		pods []corev1.Pod
		exp  []string
		err  error
	}{
		// errors
		"invalid mode":  {"foo", mockPods(true), nil, errInvalidSelectionMode},
		"no ready pods": {"all", mockPods(false, false), nil, errNoReadyPods},
		"no pods":       {"random", nil, nil, errNoReadyPods},

		"all pods":         {"all", mockPods(true, true, true), []string{"pod-000", "pod-001", "pod-002"}, nil},
		"all ready pods":   {"all", mockPods(true, false, false, true), []string{"pod-000", "pod-003"}, nil},
		"random pod":       {"random", mockPods(true, true, true), []string{"pod-002"}, nil},
		"random ready pod": {"random", mockPods(true, false, true, false), []string{"pod-002"}, nil},
	}

	for n, tt := range tests {
		t.Run(n, func(t *testing.T) {
			got, err := selectPods(tt.pods, tt.mode, last)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expecting error %v, got %v", tt.err, err)
			}
			if names := podNames(got); !slices.Equal(tt.exp, names) {
				t.Fatalf("expecting pods %v, got %v", tt.exp, names)
			}
		})
	}
}

type fakeLauncher struct {
	launchErr error
	pollErr   error
	exitCode  int32
	logs      string
	logsErr   error

	args [][]string
}

func (f *fakeLauncher) LaunchEphemeralContainer(_ context.Context, pod *corev1.Pod, _ string, _ []string, args []string) (*corev1.Pod, string, error) {
	f.args = append(f.args, args)
	if f.launchErr != nil {
		return nil, "", f.launchErr
	}
	return pod, "netverify-probe-1", nil
}

func (f *fakeLauncher) PollEphemeralContainerStatus(context.Context, *corev1.Pod, string, time.Duration) (int32, error) {
	if f.pollErr != nil {
		return -1, f.pollErr
	}
	return f.exitCode, nil
}

func (f *fakeLauncher) EphemeralContainerLogs(context.Context, *corev1.Pod, string) (string, error) {
	return f.logs, f.logsErr
}

func TestPodRunner(t *testing.T) {
	pod := &mockPods(true)[0]
	target := probe.Target{Kind: probe.KindSidecar, Host: "redis", Port: 6379, Expect: probe.MustConnect()}

	tests := map[string]struct {
		launcher       *fakeLauncher
		passed         bool
		classification string
	}{
		"passed": {
			&fakeLauncher{logs: "  Target: redis:6379\n    Result: [PASS] VERIFIED\n1/1 tests passed\n"},
			true, "VERIFIED",
		},
		"failed": {
			&fakeLauncher{exitCode: 1, logs: "    Result: [FAIL] BLOCKED (sinkhole)\n0/1 tests passed\n"},
			false, "BLOCKED (sinkhole)",
		},
		"no logs": {
			&fakeLauncher{exitCode: 1, logsErr: errors.New("forbidden")},
			false, "container netverify-probe-1 exited with code 1",
		},
		"launch failed": {
			&fakeLauncher{launchErr: errors.New("ephemeral containers disabled")},
			false, "LAUNCH FAILED",
		},
		"poll failed": {
			&fakeLauncher{pollErr: context.DeadlineExceeded},
			false, "INCOMPLETE",
		},
	}

	for n, tt := range tests {
		t.Run(n, func(t *testing.T) {
			r := podRunner{k: tt.launcher, cfg: config.Default()}

			res := r.run(t.Context(), pod, "redis", target)
			if tt.passed != res.Passed {
				t.Fatalf("expecting passed %t, got %t", tt.passed, res.Passed)
			}
			if tt.classification != res.Classification {
				t.Fatalf("expecting classification %q, got %q", tt.classification, res.Classification)
			}
			if !strings.HasPrefix(res.Name, "sandbox/pod-000: ") {
				t.Fatalf("unexpected result name %q", res.Name)
			}
		})
	}

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		l := &fakeLauncher{}
		res := podRunner{k: l, cfg: config.Default()}.run(ctx, pod, "redis", target)
		if res.Passed || len(l.args) != 0 {
			t.Fatalf("expecting nothing launched after cancellation, got %+v (launches %d)", res, len(l.args))
		}
	})
}

func TestPodRunner_Args(t *testing.T) {
	cfg := config.Default()
	target := probe.Target{Kind: probe.KindExternalIP, Host: "8.8.8.8", Port: 443, Expect: probe.MustBlock()}

	args := podRunner{cfg: cfg}.args(target)
	if e, g := "check", args[0]; e != g {
		t.Fatalf("expecting subcommand %q, got %q", e, g)
	}
	if slices.Contains(args, "--kv-password") || slices.Contains(args, "--dns-server") {
		t.Fatalf("expecting no overrides with the default config, got %q", args)
	}

	cfg.KVPassword = "s3cr3t"
	cfg.DNSServer = "10.0.0.53"
	args = podRunner{cfg: cfg}.args(target)
	for _, want := range []string{"--kv-password", "s3cr3t", "--dns-server", "10.0.0.53", "--expect", "block"} {
		if !slices.Contains(args, want) {
			t.Errorf("expecting %q in %q", want, args)
		}
	}
}
