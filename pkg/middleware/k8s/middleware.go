// Package k8s annotates container log lines with metadata of the pod that
// produced them. A node-scoped cache of pod labels and annotations is built
// from an initial listing and kept current by a watch loop; Process matches
// lines against the kubelet's container log path layout and attaches the
// cached metadata.
package k8s

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/yairfalse/logship/pkg/domain"
	"github.com/yairfalse/logship/pkg/metrics"
	"github.com/yairfalse/logship/pkg/middleware"
)

// nodeNameEnv names the node this agent runs on. Set by the downward API in
// the agent's daemonset manifest.
const nodeNameEnv = "NODE_NAME"

// Middleware enriches container log lines with pod labels and annotations.
//
// The watch loop started by Run is the sole writer of the pod cache;
// Process only reads it. One coarse lock covers the whole map: updates are
// rare relative to reads and neither side ever holds the lock across a
// network call.
type Middleware struct {
	logger    *zap.Logger
	metrics   *metrics.K8s
	clientset kubernetes.Interface
	selector  string

	mu   sync.RWMutex
	pods map[string]PodMetadata
}

var _ middleware.Middleware = (*Middleware)(nil)

// New builds the middleware for in-cluster use: node name from the
// environment, in-cluster credentials, and a synchronous initial pod
// listing. Missing node name or an unusable cluster config aborts startup;
// a failed initial listing only logs, the watch loop fills the cache later.
func New(logger *zap.Logger, m *metrics.K8s) (*Middleware, error) {
	node := os.Getenv(nodeNameEnv)
	if node == "" {
		return nil, fmt.Errorf("environment variable %s is not set", nodeNameEnv)
	}

	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to get cluster configuration: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("unable to build kubernetes client: %w", err)
	}

	return newWithClient(clientset, node, logger, m), nil
}

// newWithClient wires the middleware against an existing clientset and
// performs the initial listing. Split from New so tests can use a fake
// clientset.
func newWithClient(clientset kubernetes.Interface, node string, logger *zap.Logger, m *metrics.K8s) *Middleware {
	mw := &Middleware{
		logger:    logger,
		metrics:   m,
		clientset: clientset,
		selector:  fields.OneTermEqualSelector("spec.nodeName", node).String(),
		pods:      make(map[string]PodMetadata),
	}
	mw.populate(context.Background())
	return mw
}

// populate seeds the cache with pods currently scheduled on this node.
func (m *Middleware) populate(ctx context.Context) {
	list, err := m.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: m.selector,
	})
	if err != nil {
		m.logger.Warn("unable to poll pods during initialization", zap.Error(err))
		return
	}

	for i := range list.Items {
		meta, err := podMetadataFrom(&list.Items[i])
		if err != nil {
			m.logger.Warn("ignoring pod on initialization", zap.Error(err))
			continue
		}
		m.pods[meta.Key()] = meta
	}
}

// Run drives the pod watch loop until ctx is cancelled. It must be invoked
// exactly once per middleware instance. Watch-level errors are retried
// immediately; the watch is expected to be long-lived and errors transient.
func (m *Middleware) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		watcher, err := m.clientset.CoreV1().Pods(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{
			FieldSelector: m.selector,
		})
		if err != nil {
			m.logger.Error("unable to poll kubernetes api for pods", zap.Error(err))
			continue
		}
		m.metrics.IncrementPolls(ctx)

		for event := range watcher.ResultChan() {
			m.handlePodEvent(ctx, event)
		}
	}
}

// handlePodEvent applies one watch event to the cache.
func (m *Middleware) handlePodEvent(ctx context.Context, event watch.Event) {
	if event.Type == watch.Error {
		m.logger.Debug("kubernetes api error event", zap.Any("object", event.Object))
		return
	}

	pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		m.logger.Warn("ignoring watch event with unexpected object type",
			zap.String("event", string(event.Type)))
		return
	}

	switch event.Type {
	case watch.Added:
		meta, err := podMetadataFrom(pod)
		if err != nil {
			m.logger.Warn("ignoring pod added event", zap.Error(err))
			return
		}
		m.mu.Lock()
		m.pods[meta.Key()] = meta
		m.mu.Unlock()
		m.metrics.IncrementCreates(ctx)

	case watch.Modified:
		meta, err := podMetadataFrom(pod)
		if err != nil {
			m.logger.Warn("ignoring pod modified event", zap.Error(err))
			return
		}
		// Identity is immutable: only labels and annotations are replaced.
		// A modify with no prior add is ignored, not an implicit add.
		m.mu.Lock()
		if existing, found := m.pods[meta.Key()]; found {
			existing.Labels = meta.Labels
			existing.Annotations = meta.Annotations
			m.pods[meta.Key()] = existing
		}
		m.mu.Unlock()

	case watch.Deleted:
		meta, err := podMetadataFrom(pod)
		if err != nil {
			m.logger.Warn("ignoring pod deleted event", zap.Error(err))
			return
		}
		m.mu.Lock()
		delete(m.pods, meta.Key())
		m.mu.Unlock()
		m.metrics.IncrementDeletes(ctx)
	}
}

// Process scans the batch for lines whose origin file is a container log
// path of a known pod. When one matches, the batch collapses to a single
// enriched copy of the last matching line; otherwise the batch passes
// through unchanged.
func (m *Middleware) Process(lines []*domain.Line) []*domain.Line {
	var containerLine *domain.Line

	for _, line := range lines {
		if line.File == "" {
			continue
		}
		name, namespace, ok := parseContainerPath(line.File)
		if !ok {
			continue
		}

		m.mu.RLock()
		meta, found := m.pods[name+"_"+namespace]
		m.mu.RUnlock()
		if !found {
			continue
		}

		m.metrics.IncrementLines(context.Background())
		enriched := line.Clone()
		enriched.Labels = copyMap(meta.Labels)
		enriched.Annotations = copyMap(meta.Annotations)
		containerLine = enriched
	}

	if containerLine != nil {
		return []*domain.Line{containerLine}
	}
	return lines
}

func copyMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
