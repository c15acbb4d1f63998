// Package metrics holds the agent's OTEL instruments. Counters are
// fire-and-forget: recording never affects control flow, and a nil receiver
// is safe so tests can run without a meter provider.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Journald counts journald source activity.
type Journald struct {
	linesForwarded  metric.Int64Counter
	recordsRejected metric.Int64Counter
	workerRestarts  metric.Int64Counter
}

// NewJournald creates the journald instrument set.
func NewJournald() (*Journald, error) {
	meter := otel.Meter("logship.journald")

	linesForwarded, err := meter.Int64Counter("journald_lines_forwarded_total",
		metric.WithDescription("Formatted journald lines delivered to the stream"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lines counter: %w", err)
	}

	recordsRejected, err := meter.Int64Counter("journald_records_rejected_total",
		metric.WithDescription("Journald records dropped during formatting"))
	if err != nil {
		return nil, fmt.Errorf("failed to create rejects counter: %w", err)
	}

	workerRestarts, err := meter.Int64Counter("journald_worker_restarts_total",
		metric.WithDescription("Journald worker respawns after queue disconnection"))
	if err != nil {
		return nil, fmt.Errorf("failed to create restarts counter: %w", err)
	}

	return &Journald{
		linesForwarded:  linesForwarded,
		recordsRejected: recordsRejected,
		workerRestarts:  workerRestarts,
	}, nil
}

// IncrementLines records one forwarded line.
func (j *Journald) IncrementLines(ctx context.Context) {
	if j == nil {
		return
	}
	j.linesForwarded.Add(ctx, 1)
}

// IncrementRejects records one dropped record.
func (j *Journald) IncrementRejects(ctx context.Context) {
	if j == nil {
		return
	}
	j.recordsRejected.Add(ctx, 1)
}

// IncrementRestarts records one worker respawn.
func (j *Journald) IncrementRestarts(ctx context.Context) {
	if j == nil {
		return
	}
	j.workerRestarts.Add(ctx, 1)
}

// K8s counts pod cache and enrichment activity.
type K8s struct {
	podCreates    metric.Int64Counter
	podDeletes    metric.Int64Counter
	watchPolls    metric.Int64Counter
	linesEnriched metric.Int64Counter
}

// NewK8s creates the Kubernetes instrument set.
func NewK8s() (*K8s, error) {
	meter := otel.Meter("logship.k8s")

	podCreates, err := meter.Int64Counter("k8s_pod_creates_total",
		metric.WithDescription("Pods added to the metadata cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pod creates counter: %w", err)
	}

	podDeletes, err := meter.Int64Counter("k8s_pod_deletes_total",
		metric.WithDescription("Pods removed from the metadata cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pod deletes counter: %w", err)
	}

	watchPolls, err := meter.Int64Counter("k8s_watch_polls_total",
		metric.WithDescription("Successful pod watch polls"))
	if err != nil {
		return nil, fmt.Errorf("failed to create watch polls counter: %w", err)
	}

	linesEnriched, err := meter.Int64Counter("k8s_lines_enriched_total",
		metric.WithDescription("Log lines annotated with pod metadata"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lines enriched counter: %w", err)
	}

	return &K8s{
		podCreates:    podCreates,
		podDeletes:    podDeletes,
		watchPolls:    watchPolls,
		linesEnriched: linesEnriched,
	}, nil
}

// IncrementCreates records one pod cache insert.
func (k *K8s) IncrementCreates(ctx context.Context) {
	if k == nil {
		return
	}
	k.podCreates.Add(ctx, 1)
}

// IncrementDeletes records one pod cache removal.
func (k *K8s) IncrementDeletes(ctx context.Context) {
	if k == nil {
		return
	}
	k.podDeletes.Add(ctx, 1)
}

// IncrementPolls records one successful watch poll.
func (k *K8s) IncrementPolls(ctx context.Context) {
	if k == nil {
		return
	}
	k.watchPolls.Add(ctx, 1)
}

// IncrementLines records one enriched line.
func (k *K8s) IncrementLines(ctx context.Context) {
	if k == nil {
		return
	}
	k.linesEnriched.Add(ctx, 1)
}
