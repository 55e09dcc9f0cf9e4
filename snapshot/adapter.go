package snapshot

//go:generate mockgen -source=adapter.go -package=snapshot -destination=adapter_mock.go

import (
	"context"
)

// Adapter wraps the copy-on-write store's snapshot primitives.
//
// Every call may block on storage I/O and must honor the deadline carried by ctx.
// Implementations return *FilesystemError for store failures and *NotFoundError
// for unknown snapshot ids.
type Adapter interface {
	// CreateSnapshot atomically creates a read-only snapshot of the live subvolume.
	CreateSnapshot(ctx context.Context, subvolume string, kind Kind, description string, tags Tags, protected bool) (Snapshot, error)

	// ListSnapshots returns every snapshot of subvolume, in no particular order.
	ListSnapshots(ctx context.Context, subvolume string) ([]Snapshot, error)

	// DeleteSnapshot destroys a snapshot. Returns *NotFoundError if it is already gone.
	DeleteSnapshot(ctx context.Context, subvolume string, id ID) error

	// Diff lists the paths where the live subvolume differs from snapshot id.
	Diff(ctx context.Context, subvolume string, id ID) ([]PathChange, error)

	// RestorePath copies the snapshot's version of path over the live one.
	// A path absent from the snapshot is removed from the live subvolume.
	RestorePath(ctx context.Context, subvolume string, id ID, path string) error

	// RestoreSubvolume replaces the whole live subvolume with snapshot id.
	// Only valid when the subvolume is not the active root.
	RestoreSubvolume(ctx context.Context, subvolume string, id ID) error

	// Usage reports space consumption of the store backing subvolume.
	Usage(ctx context.Context, subvolume string) (Usage, error)

	// ActiveRoot reports whether subvolume is the root of the running system.
	ActiveRoot(ctx context.Context, subvolume string) (bool, error)
}
