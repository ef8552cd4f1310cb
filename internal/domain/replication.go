package domain

import "context"

// ReplicationEnqueuer is the small interface PlacementEngine depends on
// to trigger a background copy, breaking the cyclic reference the
// original source had between its helpers and scheduler modules (see
// design note on cyclic references): ReplicationScheduler implements
// this; PlacementEngine only knows about the interface.
type ReplicationEnqueuer interface {
	// EnqueueCopy schedules a one-shot origin->edge replication job for
	// objectName, unless one is already scheduler_in_progress. Enqueue
	// is best-effort: a failure to start is logged by the implementation,
	// never returned to the caller.
	EnqueueCopy(ctx context.Context, objectName string, origin, edge Node)
}
