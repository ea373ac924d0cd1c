package memory

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"discord-agent/backend/pkg/logger"
)

// Report summarises one reconciliation pass
type Report struct {
	VectorIDs       int
	MetadataIDs     int
	OrphanVectors   []string // vectors without metadata
	OrphanMetadata  []string // metadata rows without a vector
	VectorsDeleted  int
	MetadataDeleted int
	Deferred        int // orphan vectors seen for the first time, left for the next pass
	Failed          int
}

// Reconciler lists and diffs ids across both stores and deletes whatever exists in
// only one of them. A metadata row without a vector is the remainder of an
// unfinished delete or purge and is never re-indexed.
//
// An upsert in flight briefly looks like an orphan vector, so scheduled passes only
// delete vectors that were already orphaned on the previous pass.
type Reconciler struct {
	manager *Manager
	logger  *zap.Logger

	mu      sync.Mutex
	suspect map[string]struct{}
}

// NewReconciler creates a reconciler over manager's stores
func NewReconciler(manager *Manager) *Reconciler {
	return &Reconciler{
		manager: manager,
		logger:  logger.Named("reconcile"),
		suspect: make(map[string]struct{}),
	}
}

// Reconcile runs one pass. With immediate set, orphan vectors are deleted without
// waiting for a confirming second pass.
func (r *Reconciler) Reconcile(ctx context.Context, immediate bool) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vectorIDs, metadataIDs, err := r.manager.StoreIDs(ctx, "")
	if err != nil {
		return Report{}, err
	}

	report := Report{VectorIDs: len(vectorIDs), MetadataIDs: len(metadataIDs)}
	report.OrphanVectors = difference(vectorIDs, metadataIDs)
	report.OrphanMetadata = difference(metadataIDs, vectorIDs)

	toDelete := make([]string, 0, len(report.OrphanVectors))
	nextSuspect := make(map[string]struct{}, len(report.OrphanVectors))
	for _, id := range report.OrphanVectors {
		if _, seen := r.suspect[id]; immediate || seen {
			toDelete = append(toDelete, id)
			continue
		}
		nextSuspect[id] = struct{}{}
		report.Deferred++
	}
	r.suspect = nextSuspect

	if len(toDelete) > 0 {
		dctx, cancel := r.manager.withTimeout(ctx)
		deleted, err := r.manager.vectors.DeleteMany(dctx, toDelete)
		cancel()
		if err != nil {
			r.logger.Error("Failed to delete orphan vectors", zap.Strings("memory_ids", toDelete), zap.Error(err))
			report.Failed += len(toDelete)
		} else {
			report.VectorsDeleted = deleted
		}
	}

	if len(report.OrphanMetadata) > 0 {
		deleted, err := r.deleteOrphanMetadata(ctx, report.OrphanMetadata)
		if err != nil {
			report.Failed += len(report.OrphanMetadata)
		} else {
			report.MetadataDeleted = deleted
		}
	}

	r.logger.Info("Reconciliation pass complete",
		zap.Int("vector_ids", report.VectorIDs),
		zap.Int("metadata_ids", report.MetadataIDs),
		zap.Int("orphan_vectors", len(report.OrphanVectors)),
		zap.Int("orphan_metadata", len(report.OrphanMetadata)),
		zap.Int("vectors_deleted", report.VectorsDeleted),
		zap.Int("metadata_deleted", report.MetadataDeleted),
		zap.Int("deferred", report.Deferred),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// deleteOrphanMetadata finishes a delete that removed the vector but not the row.
// Vectors are always written before their metadata, so a row without a vector is
// never an upsert in flight.
func (r *Reconciler) deleteOrphanMetadata(ctx context.Context, ids []string) (int, error) {
	dctx, cancel := r.manager.withTimeout(ctx)
	defer cancel()
	deleted, err := r.manager.metadata.DeleteMemories(dctx, ids)
	if err != nil {
		r.logger.Error("Failed to delete orphan metadata", zap.Strings("memory_ids", ids), zap.Error(err))
		return 0, err
	}
	r.logger.Info("Deleted orphan metadata", zap.Strings("memory_ids", ids), zap.Int("deleted", deleted))
	return deleted, nil
}

// Schedule runs Reconcile on a cron spec (e.g. "@every 1h"). The caller starts and
// stops the returned scheduler.
func (r *Reconciler) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := r.Reconcile(ctx, false); err != nil {
			r.logger.Error("Scheduled reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// difference returns the ids of a not present in b, in a's order
func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}
	out := []string{}
	for _, id := range a {
		if _, ok := inB[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
