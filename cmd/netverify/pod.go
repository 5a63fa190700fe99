package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/grafana/netverify/pkg/common"
	"github.com/grafana/netverify/pkg/config"
	"github.com/grafana/netverify/pkg/kubernetes"
	"github.com/grafana/netverify/pkg/logging"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/probeflags"
	"github.com/grafana/netverify/pkg/report"
	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
)

var (
	errInvalidSelectionMode = errors.New("invalid pod selection mode")
	errNoReadyPods          = errors.New("no ready pods")
)

const (
	selectionAll    = "all"
	selectionRandom = "random"
)

type podFlags struct {
	kubeContext string
	namespace   string
	selector    string
	mode        string
	image       string
	binary      string
	pollTimeout time.Duration
}

// Pod returns the pod command, which runs the targets from inside
// existing pods through ephemeral probe containers.
func Pod() *Command {
	var (
		src source
		f   podFlags
	)

	cmd := &Command{
		Command: &cobra.Command{
			Use:   "pod --namespace NS --selector LABELS --plan FILE",
			Short: "Probe targets from inside the selected pods",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				common.Exit(podCmd(cmd, src, f))
			},
		},
	}
	src.addFlags(cmd)

	cmd.Flags().StringVar(&f.kubeContext, "context", "", "Kubernetes context to use, in-cluster configuration if empty.")
	cmd.Flags().StringVarP(&f.namespace, "namespace", "n", "", "Namespace of the pods to probe from.")
	cmd.Flags().StringVarP(&f.selector, "selector", "l", "", "Label selector of the pods to probe from.")
	cmd.Flags().StringVar(&f.mode, "mode", selectionAll, "Pod selection mode: all or random.")
	cmd.Flags().StringVar(&f.image, "image", "", "Probe image, "+kubernetes.DefaultProbeImage+" if empty.")
	cmd.Flags().StringVar(&f.binary, "binary", "/netverify", "Path of the netverify binary inside the probe image.")
	cmd.Flags().DurationVar(&f.pollTimeout, "poll-timeout", kubernetes.DefaultPollTimeout, "How long to wait for a probe container to terminate.")

	return cmd
}

func podCmd(cmd *cobra.Command, src source, f podFlags) int {
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

	k, err := kubernetes.New(f.kubeContext)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeExecError
	}

	ctx := cmd.Context()
	pods, err := k.GetPods(ctx, f.namespace, f.selector, "")
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeExecError
	}

	selected, err := selectPods(pods, f.mode, rand.IntN)
	switch {
	case errors.Is(err, errInvalidSelectionMode):
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeConfigError
	case err != nil:
		cmd.PrintErrf("Error: %v\n", err)
		return common.ExitCodeExecError
	}

	s.reporter.Start(set.name, set.description)
	for _, err := range set.skipped {
		s.log.Warn("skipping malformed record", "err", err)
		s.reporter.Skipped(err)
	}

	runner := podRunner{
		k:           k,
		image:       f.image,
		command:     []string{f.binary},
		pollTimeout: f.pollTimeout,
		cfg:         s.cfg,
		log:         s.log,
	}
	for _, pod := range selected {
		s.log.Info("probing from pod", "pod", pod.Namespace+"/"+pod.Name)
		for _, e := range set.entries {
			s.reporter.RecordResult(runner.run(ctx, pod, e.Name, e.Target))
		}
	}

	return s.finish()
}

// selectPods keeps the ready pods, and only one of them in random mode.
func selectPods(pods []corev1.Pod, mode string, intN func(int) int) ([]*corev1.Pod, error) {
	if mode != selectionAll && mode != selectionRandom {
		return nil, fmt.Errorf("%w: %q", errInvalidSelectionMode, mode)
	}

	var ready []*corev1.Pod
	for i := range pods {
		if isPodReady(&pods[i]) {
			ready = append(ready, &pods[i])
		}
	}

	if len(ready) == 0 {
		return nil, fmt.Errorf("%w: %d pods found, none ready", errNoReadyPods, len(pods))
	}

	if mode == selectionRandom {
		ready = []*corev1.Pod{ready[intN(len(ready))]}
	}

	return ready, nil
}

// isPodReady checks if a pod is ready by looking at its Ready condition
func isPodReady(pod *corev1.Pod) bool {
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

type ephemeralLauncher interface {
	LaunchEphemeralContainer(ctx context.Context, pod *corev1.Pod, probeImage string, command []string, args []string) (*corev1.Pod, string, error)
	PollEphemeralContainerStatus(ctx context.Context, pod *corev1.Pod, ephemeralContainerName string, timeout time.Duration) (int32, error)
	EphemeralContainerLogs(ctx context.Context, pod *corev1.Pod, ephemeralContainerName string) (string, error)
}

type podRunner struct {
	k           ephemeralLauncher
	image       string
	command     []string
	pollTimeout time.Duration
	cfg         config.Config
	log         logging.Logger
}

func (r podRunner) args(t probe.Target) []string {
	args := append([]string{"check"}, probeflags.Args(t, r.cfg.Timeout)...)
	if r.cfg.DNSServer != "" {
		args = append(args, probeflags.Flagify(probeflags.ArgDNSServer), r.cfg.DNSServer)
	}
	if r.cfg.KVPassword != probe.DefaultKVPassword {
		args = append(args, probeflags.Flagify(probeflags.ArgKVPassword), r.cfg.KVPassword)
	}
	return args
}

// run probes t from inside pod. The container exit code is the verdict;
// the classification comes from its output when that can be read.
func (r podRunner) run(ctx context.Context, pod *corev1.Pod, name string, t probe.Target) (res report.Result) {
	start := time.Now()
	res = report.Result{
		Name: fmt.Sprintf("%s/%s: %s", pod.Namespace, pod.Name, name),
		Kind: t.Kind,
	}
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Classification = "INCOMPLETE"
		res.Detail = err.Error()
		return res
	}

	probed, container, err := r.k.LaunchEphemeralContainer(ctx, pod, r.image, r.command, r.args(t))
	if err != nil {
		res.Classification = "LAUNCH FAILED"
		res.Detail = err.Error()
		return res
	}

	code, err := r.k.PollEphemeralContainerStatus(ctx, probed, container, r.pollTimeout)
	if err != nil {
		res.Classification = "INCOMPLETE"
		res.Detail = err.Error()
		return res
	}

	res.Passed = code == int32(common.ExitCodeSuccess)
	res.Detail = fmt.Sprintf("container %s exited with code %d", container, code)
	res.Classification = res.Detail

	logs, err := r.k.EphemeralContainerLogs(ctx, probed, container)
	if err != nil {
		r.log.Warn("reading probe container logs", "container", container, "err", err)
		return res
	}
	if line, ok := kubernetes.ResultLine(logs); ok {
		// drop the [PASS]/[FAIL] label, the verdict is the exit code
		_, classification, _ := strings.Cut(line, " ")
		res.Classification = classification
	}

	return res
}
