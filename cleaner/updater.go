package cleaner

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Updater is invoked periodically by Run.
type Updater interface {
	// Trigger one update pass.
	Update(ctx context.Context) error

	// Get the configured update frequency from the Updater.
	UpdateInterval() time.Duration
}

// An Updater that invokes a sequence of steps, then a cleaner.Cleaner, at the update interval.
type CleaningUpdater struct {
	interval time.Duration
	before   []func(context.Context) error
	cleaner  Cleaner
}

// NewCleaningUpdater calls before in order and then cleaner on each Update.
func NewCleaningUpdater(interval time.Duration, cleaner Cleaner, before ...func(context.Context) error) *CleaningUpdater {
	return &CleaningUpdater{
		interval: interval,
		before:   before,
		cleaner:  cleaner,
	}
}

// Update returns ctx's error when it is done before the pass finished.
func (u *CleaningUpdater) Update(ctx context.Context) error {
	for _, step := range u.before {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			log.Errorf("Update step failed: %v", err)
		}
	}
	if u.cleaner != nil {
		_ = u.cleaner.Cleanup(ctx)
		// We don't return Cleanup, failures were logged and are retried next pass
	}
	return ctx.Err()
}

func (u *CleaningUpdater) UpdateInterval() time.Duration {
	return u.interval
}

// Run calls u.Update immediately and then every UpdateInterval until ctx is done.
func Run(ctx context.Context, u Updater) {
	if err := u.Update(ctx); err != nil && ctx.Err() == nil {
		log.Errorf("Error running Update: %v", err)
	}
	ticker := time.NewTicker(u.UpdateInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Update(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("Error running Update: %v", err)
			}
		}
	}
}
