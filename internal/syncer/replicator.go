package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/doselog/internal/clock"
	"github.com/kalambet/doselog/internal/status"
	"github.com/kalambet/doselog/internal/storage"
)

// DefaultBatchSize bounds how many outbox entries a single cycle transmits.
const DefaultBatchSize = 50

// MetaLastSyncAt is the sync_meta key recording the last fully successful
// replication time.
const MetaLastSyncAt = "last_sync_at"

// EntryResult is the remote's per-entry verdict for a pushed batch.
type EntryResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RemoteApplier transmits an ordered batch to the remote service, which
// applies each entry idempotently keyed by (table_name, row_id, operation).
// Transport failures must be reported as *NetworkError, credential failures
// as *AuthError.
type RemoteApplier interface {
	Apply(ctx context.Context, entries []storage.OutboxEntry) ([]EntryResult, error)
}

// OutboxStore is the slice of the local store the replicator needs.
type OutboxStore interface {
	GetOutbox(limit int) ([]storage.OutboxEntry, error)
	ClearOutbox(ids []int64) error
	SetMeta(key, value string) error
}

// Replicator drains the outbox in batches and clears what the remote
// acknowledged. At most one cycle runs at a time per local store.
type Replicator struct {
	store     OutboxStore
	remote    RemoteApplier
	status    *status.Publisher
	clock     clock.Clock
	batchSize int
	logger    *slog.Logger

	mu sync.Mutex // single-flight guard
}

// NewReplicator wires a Replicator. batchSize <= 0 uses DefaultBatchSize;
// a nil clk uses the system clock.
func NewReplicator(store OutboxStore, remote RemoteApplier, pub *status.Publisher, clk clock.Clock, batchSize int) *Replicator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Replicator{
		store:     store,
		remote:    remote,
		status:    pub,
		clock:     clk,
		batchSize: batchSize,
		logger:    slog.Default(),
	}
}

// ReplicateOnce fetches one bounded batch, pushes it, and clears the entries
// the remote acknowledged. A concurrent trigger while a cycle is in flight
// is a no-op. Failures are reflected in the status publisher; they are also
// returned so callers can log them with their own context.
func (r *Replicator) ReplicateOnce(ctx context.Context) error {
	if !r.mu.TryLock() {
		return nil
	}
	defer r.mu.Unlock()

	prev := r.status.Get()
	r.status.Set(status.Syncing())

	err := r.drain(ctx)
	if err == nil {
		now := r.clock.Now()
		r.status.Set(status.Synced(now))
		if merr := r.store.SetMeta(MetaLastSyncAt, now.UTC().Format(time.RFC3339)); merr != nil {
			r.logger.Warn("recording last sync time", "error", merr)
		}
		return nil
	}

	var netErr *NetworkError
	var authErr *AuthError
	var remoteErr *RemoteError
	var rejErr *RejectedError
	switch {
	case errors.As(err, &netErr):
		r.status.Set(status.Offline())
	case errors.As(err, &authErr), errors.As(err, &remoteErr), errors.As(err, &rejErr):
		r.status.Set(status.Error(err.Error()))
	default:
		// A defect inside the attempt must not poison the visible state;
		// the next scheduled cycle proceeds normally.
		r.logger.Warn("unexpected replication failure", "error", err)
		r.status.Set(prev)
	}
	return err
}

// drain performs the actual cycle. Panics are converted into errors so a
// defect never kills the background task.
func (r *Replicator) drain(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("replication panic: %v", p)
		}
	}()

	entries, err := r.store.GetOutbox(r.batchSize)
	if err != nil {
		return fmt.Errorf("reading outbox: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	results, err := r.remote.Apply(ctx, entries)
	if err != nil {
		return err
	}

	var acked []int64
	rejected := 0
	firstMsg := ""
	for _, res := range results {
		if res.OK {
			acked = append(acked, res.ID)
			continue
		}
		rejected++
		if firstMsg == "" {
			firstMsg = res.Error
		}
	}

	if err := r.store.ClearOutbox(acked); err != nil {
		return fmt.Errorf("clearing acknowledged entries: %w", err)
	}
	r.logger.Debug("replication batch finished", "sent", len(entries), "acked", len(acked), "rejected", rejected)

	if rejected > 0 {
		return &RejectedError{Count: rejected, First: firstMsg}
	}
	return nil
}
