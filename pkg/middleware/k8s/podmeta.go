package k8s

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// PodMetadata is the cached view of one pod: its identity plus the labels
// and annotations enrichment attaches to matching lines. Name and namespace
// are always present; a pod object missing either is rejected outright.
type PodMetadata struct {
	Name        string
	Namespace   string
	Labels      map[string]string
	Annotations map[string]string
}

// Key returns the composite cache key for the pod.
func (p PodMetadata) Key() string {
	return p.Name + "_" + p.Namespace
}

// podMetadataFrom converts a pod object into cache metadata. Missing name or
// namespace is a hard rejection, never a partially populated record.
func podMetadataFrom(pod *corev1.Pod) (PodMetadata, error) {
	if pod == nil {
		return PodMetadata{}, fmt.Errorf("pod is nil")
	}
	if pod.Name == "" {
		return PodMetadata{}, fmt.Errorf("pod is missing metadata.name")
	}
	if pod.Namespace == "" {
		return PodMetadata{}, fmt.Errorf("pod is missing metadata.namespace")
	}

	meta := PodMetadata{
		Name:        pod.Name,
		Namespace:   pod.Namespace,
		Labels:      map[string]string{},
		Annotations: map[string]string{},
	}
	for k, v := range pod.Labels {
		meta.Labels[k] = v
	}
	for k, v := range pod.Annotations {
		meta.Annotations[k] = v
	}
	return meta, nil
}
