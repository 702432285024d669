package telemetry

import "context"

// Listener receives pushes from a Source.
type Listener interface {
	OnUpdate(snapshot Snapshot)
	OnExit(processID int)
}

// Source produces process snapshots. Listen blocks until ctx is done.
type Source interface {
	GetSnapshot(ctx context.Context) (Snapshot, error)
	Listen(ctx context.Context, l Listener) error
	Terminate(ctx context.Context, processID int) (bool, error)
}
