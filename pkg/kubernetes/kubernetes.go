package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/strategicpatch"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const ephemeralPrefix = "netverify-probe-"

var (
	// DefaultProbeImage can be overridden at build time via ldflags
	DefaultProbeImage = "grafana/netverify:latest"

	// DefaultPollTimeout bounds how long a probe container may run.
	DefaultPollTimeout = 30 * time.Second
)

// New returns a new Kubernetes object, connected to the given
// context, or to the in-cluster API if blank.
func New(context string) (*Kubernetes, error) {
	config, err := getClusterConfig(context)
	if err != nil {
		return nil, fmt.Errorf("fetching Kubernetes configuration: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("creating Kubernetes client: %w", err)
	}

	return &Kubernetes{
		client: client,
	}, nil
}

// NewWithClient wraps an existing client, typically a fake one.
func NewWithClient(client kubernetes.Interface) *Kubernetes {
	return &Kubernetes{client: client}
}

func getClusterConfig(kontext string) (*rest.Config, error) {
	// attempt to use config from pod service account
	cfg, err := rest.InClusterConfig()
	if err != nil {
		// Can be overridden by KUBECONFIG variable
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		configOverride := &clientcmd.ConfigOverrides{
			CurrentContext: kontext,
		}

		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules,
			configOverride,
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("loading Kubernetes configuration: %w", err)
		}
	}

	return cfg, nil
}

type Kubernetes struct {
	client kubernetes.Interface
}

var (
	errNoPodsFound                = errors.New("no pods found")
	errEphemeralContainerNotFound = errors.New("ephemeral container not found")
)

func (k *Kubernetes) GetPods(ctx context.Context, namespace, labels, fields string) ([]corev1.Pod, error) {
	pods, err := k.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels,
		FieldSelector: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pods for namespace %s, labels %q, and fields %q: %w", namespace, labels, fields, err)
	}

	if len(pods.Items) == 0 {
		return nil, fmt.Errorf("%w: namespace %s, labels %q, fields %q", errNoPodsFound, namespace, labels, fields)
	}

	return pods.Items, nil
}

func GetProbeImage(probeImage string) string {
	if probeImage == "" {
		probeImage = DefaultProbeImage
	}
	return probeImage
}

// LaunchEphemeralContainer attaches a probe container to pod, sharing its
// network namespace. It returns the patched pod and the container name.
func (k *Kubernetes) LaunchEphemeralContainer(ctx context.Context, pod *corev1.Pod, probeImage string, command []string, args []string) (*corev1.Pod, string, error) {
	podJS, err := json.Marshal(pod)
	if err != nil {
		return nil, "", fmt.Errorf("creating JSON for pod: %w", err)
	}

	ephemeralName := fmt.Sprintf("%s%d", ephemeralPrefix, time.Now().UnixNano())

	probeContainer := corev1.EphemeralContainer{
		EphemeralContainerCommon: corev1.EphemeralContainerCommon{
			Name:    ephemeralName,
			Image:   GetProbeImage(probeImage),
			Command: command,
			Args:    args,
		},
	}

	probePod := pod.DeepCopy()
	probePod.Spec.EphemeralContainers = append(probePod.Spec.EphemeralContainers, probeContainer)

	probeJS, err := json.Marshal(probePod)
	if err != nil {
		return nil, ephemeralName, fmt.Errorf("creating JSON for probe container: %w", err)
	}

	patch, err := strategicpatch.CreateTwoWayMergePatch(podJS, probeJS, pod)
	if err != nil {
		return nil, ephemeralName, fmt.Errorf("creating patch to add probe container: %w", err)
	}

	pods := k.client.CoreV1().Pods(pod.Namespace)
	result, err := pods.Patch(ctx, pod.Name, types.StrategicMergePatchType, patch, metav1.PatchOptions{}, "ephemeralcontainers")
	if err != nil {
		return nil, ephemeralName, fmt.Errorf("patching pod with probe container: %w", err)
	}

	return result, ephemeralName, nil
}

// getEphemeralContainerExitStatus returns -1 while the container has not
// terminated.
func (k *Kubernetes) getEphemeralContainerExitStatus(ctx context.Context, pod *corev1.Pod, ephemeralContainerName string) (int32, error) {
	pod, err := k.client.CoreV1().Pods(pod.Namespace).Get(ctx, pod.Name, metav1.GetOptions{})
	if err != nil {
		return -1, err
	}

	for _, ec := range pod.Status.EphemeralContainerStatuses {
		if ec.Name != ephemeralContainerName {
			continue
		}
		if ec.State.Terminated != nil && ec.State.Terminated.ExitCode > -1 {
			return ec.State.Terminated.ExitCode, nil
		}
		return -1, nil
	}

	return -1, fmt.Errorf("%w: %s in pod %s/%s", errEphemeralContainerNotFound, ephemeralContainerName, pod.Namespace, pod.Name)
}

// The status of a freshly patched pod may not list the container yet, so a
// missing container is not an error while polling.
func (k *Kubernetes) isEphemeralContainerTerminated(pod *corev1.Pod, ephemeralContainerName string) wait.ConditionWithContextFunc {
	return func(ctx context.Context) (bool, error) {
		exitCode, err := k.getEphemeralContainerExitStatus(ctx, pod, ephemeralContainerName)
		if errors.Is(err, errEphemeralContainerNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return exitCode > -1, nil
	}
}

// PollEphemeralContainerStatus waits up to timeout for the container to
// terminate and returns its exit code.
func (k *Kubernetes) PollEphemeralContainerStatus(ctx context.Context, pod *corev1.Pod, ephemeralContainerName string, timeout time.Duration) (int32, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	err := wait.PollUntilContextTimeout(ctx, time.Second, timeout, false, k.isEphemeralContainerTerminated(pod, ephemeralContainerName))
	if err != nil {
		return -1, fmt.Errorf("waiting for ephemeral container to terminate: %w", err)
	}

	exitCode, err := k.getEphemeralContainerExitStatus(ctx, pod, ephemeralContainerName)
	if err != nil {
		return -1, fmt.Errorf("getting ephemeral container exit code: %w", err)
	}

	return exitCode, nil
}

// EphemeralContainerLogs returns the output of a probe container.
func (k *Kubernetes) EphemeralContainerLogs(ctx context.Context, pod *corev1.Pod, ephemeralContainerName string) (string, error) {
	req := k.client.CoreV1().Pods(pod.Namespace).GetLogs(pod.Name, &corev1.PodLogOptions{
		Container: ephemeralContainerName,
	})

	b, err := req.DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching logs of %s in pod %s/%s: %w", ephemeralContainerName, pod.Namespace, pod.Name, err)
	}

	return string(b), nil
}

// ResultLine returns the classification printed on the last result line
// of a probe container's output.
func ResultLine(logs string) (string, bool) {
	var res string
	var found bool
	for line := range strings.Lines(logs) {
		line = strings.TrimSpace(line)
		if r, ok := strings.CutPrefix(line, "Result: "); ok {
			res, found = r, true
		}
	}
	return res, found
}
