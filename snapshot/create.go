package snapshot

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

// RetryConfig bounds the retries of creation and deletion.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// NewBackOff builds a bounded exponential backoff that also stops when ctx is done.
func (c RetryConfig) NewBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
}

// Create executes req against a, retrying FilesystemErrors with b.
// Other errors, and the last FilesystemError once b gives up, are returned.
func Create(ctx context.Context, a Adapter, req Request, b backoff.BackOff) (Snapshot, error) {
	var snap Snapshot
	var err error
	try := 1
	backoff.Retry(func() error {
		log.Debugf("Create %s snapshot of %s, try #%d", req.Kind, req.Subvolume, try)
		snap, err = a.CreateSnapshot(ctx, req.Subvolume, req.Kind, req.Description, req.Tags, req.Protected)
		try += 1
		if err != nil && IsFilesystem(err) && ctx.Err() == nil {
			return err
		}
		return nil
	}, b)
	if err != nil {
		return Snapshot{}, err
	}
	log.WithFields(log.Fields{
		"subvolume": snap.Subvolume,
		"snapshot":  snap.ID,
		"kind":      snap.Kind,
	}).Info("Created snapshot")
	return snap, nil
}

// Delete removes one snapshot, retrying FilesystemErrors with b.
// A snapshot that is already gone is reported as a *ConcurrencyError.
func Delete(ctx context.Context, a Adapter, subvolume string, id ID, b backoff.BackOff) error {
	var err error
	backoff.Retry(func() error {
		err = a.DeleteSnapshot(ctx, subvolume, id)
		if err != nil && IsFilesystem(err) && !IsNotFound(err) && ctx.Err() == nil {
			return err
		}
		return nil
	}, b)
	if err != nil && IsNotFound(err) {
		return NewConcurrencyError("snapshot %s#%d already deleted", subvolume, id)
	}
	return err
}

// ListNewestFirst re-reads the live snapshot list of subvolume and sorts it newest first.
func ListNewestFirst(ctx context.Context, a Adapter, subvolume string) ([]Snapshot, error) {
	snaps, err := a.ListSnapshots(ctx, subvolume)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(snaps)
	return snaps, nil
}

// WithTimeout bounds ctx by d. A d of zero or less leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
