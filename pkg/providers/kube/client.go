// Package kube discovers deployment pods and streams their logs through the
// Kubernetes API.
package kube

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/modoterra/klogs/pkg/core"
)

// Client is both a core.Discoverer and a core.StreamProvider.
type Client struct {
	clientset kubernetes.Interface
	logger    *slog.Logger
}

// New wraps an existing clientset.
func New(clientset kubernetes.Interface, logger *slog.Logger) *Client {
	return &Client{clientset: clientset, logger: logger}
}

// NewClientset loads kubeconfig the way kubectl does. An empty path uses
// $KUBECONFIG or ~/.kube/config, falling back to in-cluster config.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return cs, nil
}

// Discover lists the pods selected by the deployment's label selector,
// sorted by name. A deployment with an empty selector yields no sources.
func (c *Client) Discover(ctx context.Context, namespace, deployment string) ([]core.Source, error) {
	dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, deployment, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get deployment %s/%s: %w", namespace, deployment, err)
	}
	if dep.Spec.Selector == nil || (len(dep.Spec.Selector.MatchLabels) == 0 && len(dep.Spec.Selector.MatchExpressions) == 0) {
		c.logger.Warn("deployment has no selector", "namespace", namespace, "deployment", deployment)
		return nil, nil
	}
	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("deployment %s/%s selector: %w", namespace, deployment, err)
	}

	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("list pods for %s/%s: %w", namespace, deployment, err)
	}

	sources := make([]core.Source, 0, len(pods.Items))
	for i := range pods.Items {
		sources = append(sources, sourceFromPod(&pods.Items[i]))
	}
	slices.SortFunc(sources, func(a, b core.Source) int { return strings.Compare(a.ID, b.ID) })
	c.logger.Debug("discovered pods", "deployment", deployment, "count", len(sources))
	return sources, nil
}

func sourceFromPod(pod *corev1.Pod) core.Source {
	src := core.Source{
		ID:        pod.Name,
		Namespace: pod.Namespace,
		Status:    podStatus(pod),
	}
	if len(pod.Spec.Containers) > 0 {
		src.Container = pod.Spec.Containers[0].Name
	}
	return src
}

func podStatus(pod *corev1.Pod) core.SourceStatus {
	switch pod.Status.Phase {
	case corev1.PodRunning:
		return core.StatusRunning
	case corev1.PodPending:
		return core.StatusPending
	case corev1.PodSucceeded, corev1.PodFailed:
		return core.StatusTerminated
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
			return core.StatusCrashLoopBackOff
		}
	}
	return core.StatusUnknown
}

// Stream opens the pod log with timestamps enabled.
func (c *Client) Stream(ctx context.Context, src core.Source, opts core.StreamOptions) (core.LineStream, error) {
	podOpts := &corev1.PodLogOptions{
		Container:  src.Container,
		Follow:     opts.Follow,
		Timestamps: true,
	}
	if opts.Tail >= 0 {
		tail := int64(opts.Tail)
		podOpts.TailLines = &tail
	}

	rc, err := c.clientset.CoreV1().Pods(src.Namespace).GetLogs(src.ID, podOpts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream logs %s/%s: %w", src.Namespace, src.ID, err)
	}

	out := make(chan core.RawLine, 100)
	go func() {
		defer close(out)
		defer rc.Close()
		core.ReadLines(ctx, rc, out)
		c.logger.Debug("log stream closed", "pod", src.ID)
	}()
	return out, nil
}
