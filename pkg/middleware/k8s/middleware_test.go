package k8s

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/yairfalse/logship/pkg/domain"
)

func testPod(name, namespace string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
			Annotations: map[string]string{
				"owner": "platform",
			},
		},
		Spec: corev1.PodSpec{NodeName: "node-1"},
	}
}

func newTestMiddleware(t *testing.T, objects ...runtime.Object) *Middleware {
	t.Helper()
	clientset := fake.NewSimpleClientset(objects...)
	return newWithClient(clientset, "node-1", zap.NewNop(), nil)
}

func containerLine(pod, namespace string) *domain.Line {
	return domain.NewLine("some log output").
		WithFile("/var/log/containers/" + pod + "_" + namespace + "_app-" + hexID + ".log")
}

func TestPodMetadataFrom(t *testing.T) {
	meta, err := podMetadataFrom(testPod("nginx", "default", map[string]string{"app": "web"}))
	require.NoError(t, err)
	assert.Equal(t, "nginx", meta.Name)
	assert.Equal(t, "default", meta.Namespace)
	assert.Equal(t, "nginx_default", meta.Key())
	assert.Equal(t, map[string]string{"app": "web"}, meta.Labels)
	assert.Equal(t, map[string]string{"owner": "platform"}, meta.Annotations)

	_, err = podMetadataFrom(testPod("", "default", nil))
	assert.Error(t, err, "missing name is a hard rejection")

	_, err = podMetadataFrom(testPod("nginx", "", nil))
	assert.Error(t, err, "missing namespace is a hard rejection")

	_, err = podMetadataFrom(nil)
	assert.Error(t, err)
}

func TestInitialListingPopulatesCache(t *testing.T) {
	mw := newTestMiddleware(t,
		testPod("nginx", "default", map[string]string{"app": "web"}),
		testPod("redis", "cache", nil),
	)

	assert.Len(t, mw.pods, 2)
	assert.Contains(t, mw.pods, "nginx_default")
	assert.Contains(t, mw.pods, "redis_cache")
}

func TestHandlePodEventAdd(t *testing.T) {
	mw := newTestMiddleware(t)
	ctx := context.Background()

	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Added,
		Object: testPod("nginx", "default", map[string]string{"app": "web"}),
	})

	require.Contains(t, mw.pods, "nginx_default")
	assert.Equal(t, map[string]string{"app": "web"}, mw.pods["nginx_default"].Labels)
}

func TestHandlePodEventModify(t *testing.T) {
	mw := newTestMiddleware(t, testPod("nginx", "default", map[string]string{"app": "web"}))
	ctx := context.Background()

	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Modified,
		Object: testPod("nginx", "default", map[string]string{"app": "web", "tier": "front"}),
	})

	require.Contains(t, mw.pods, "nginx_default")
	assert.Equal(t, map[string]string{"app": "web", "tier": "front"}, mw.pods["nginx_default"].Labels)
	assert.Equal(t, "nginx", mw.pods["nginx_default"].Name, "identity fields stay untouched")
}

func TestHandlePodEventModifyUnknownPodIsIgnored(t *testing.T) {
	mw := newTestMiddleware(t)
	ctx := context.Background()

	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Modified,
		Object: testPod("ghost", "default", map[string]string{"app": "ghost"}),
	})

	assert.Empty(t, mw.pods, "modify without a prior add must not create an entry")
}

func TestHandlePodEventDelete(t *testing.T) {
	mw := newTestMiddleware(t, testPod("nginx", "default", nil))
	ctx := context.Background()

	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Deleted,
		Object: testPod("nginx", "default", nil),
	})
	assert.NotContains(t, mw.pods, "nginx_default")

	// Deleting an absent key is a no-op.
	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Deleted,
		Object: testPod("nginx", "default", nil),
	})
	assert.Empty(t, mw.pods)
}

func TestHandlePodEventBadPodIsSkipped(t *testing.T) {
	mw := newTestMiddleware(t)
	ctx := context.Background()

	mw.handlePodEvent(ctx, watch.Event{
		Type:   watch.Added,
		Object: testPod("", "default", nil),
	})

	assert.Empty(t, mw.pods)
}

func TestProcessEnrichesMatchingLine(t *testing.T) {
	mw := newTestMiddleware(t, testPod("nginx", "default", map[string]string{"app": "web"}))

	original := containerLine("nginx", "default")
	out := mw.Process([]*domain.Line{original})

	require.Len(t, out, 1)
	assert.Equal(t, map[string]string{"app": "web"}, out[0].Labels)
	assert.Equal(t, map[string]string{"owner": "platform"}, out[0].Annotations)
	assert.Nil(t, original.Labels, "the original line is never mutated")
}

func TestProcessKeepsLastMatch(t *testing.T) {
	mw := newTestMiddleware(t,
		testPod("nginx", "default", map[string]string{"app": "web"}),
		testPod("redis", "cache", map[string]string{"app": "cache"}),
	)

	out := mw.Process([]*domain.Line{
		containerLine("nginx", "default"),
		containerLine("redis", "cache"),
	})

	require.Len(t, out, 1, "a matching batch collapses to the last enriched line")
	assert.Equal(t, map[string]string{"app": "cache"}, out[0].Labels)
}

func TestProcessPassesThroughWhenNothingMatches(t *testing.T) {
	mw := newTestMiddleware(t, testPod("nginx", "default", nil))

	lines := []*domain.Line{
		domain.NewLine("plain journald line").WithFile("host-a"),
		domain.NewLine("no file at all"),
		containerLine("unknown", "default"),
	}
	out := mw.Process(lines)

	assert.Equal(t, lines, out)
}

func TestRunAppliesWatchEvents(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	watcher := watch.NewFake()
	clientset.PrependWatchReactor("pods", k8stesting.DefaultWatchReactor(watcher, nil))

	mw := newWithClient(clientset, "node-1", zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mw.Run(ctx)
		close(done)
	}()

	watcher.Add(testPod("nginx", "default", map[string]string{"app": "web"}))

	require.Eventually(t, func() bool {
		mw.mu.RLock()
		defer mw.mu.RUnlock()
		_, found := mw.pods["nginx_default"]
		return found
	}, 5*time.Second, 10*time.Millisecond)

	watcher.Delete(testPod("nginx", "default", nil))

	require.Eventually(t, func() bool {
		mw.mu.RLock()
		defer mw.mu.RUnlock()
		_, found := mw.pods["nginx_default"]
		return !found
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	watcher.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
