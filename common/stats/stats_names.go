package stats

/*
This file defines all the metrics being collected. Names are scoped per subvolume
by callers, ex: stat.Scope("home").Counter(CreateOkCounter).
*/

const (
	/************************* Snapshot store metrics ***********************/
	/*
		snapshots created, after any retries
	*/
	CreateOkCounter = "createOkCounter"

	/*
		create requests that failed after exhausting retries
	*/
	CreateErrCounter = "createErrCounter"

	/*
		attempts (including retries) made against the store to create a snapshot
	*/
	CreateAttemptCounter = "createAttemptCounter"

	/*
		time to create one snapshot, retries included
	*/
	CreateLatency_ms = "createLatency_ms"

	/*
		snapshots deleted by retention or by the delete command
	*/
	DeleteOkCounter = "deleteOkCounter"

	/*
		deletes that failed for a reason other than the snapshot already being gone
	*/
	DeleteErrCounter = "deleteErrCounter"

	/*
		deletes that found the snapshot already gone
	*/
	DeleteRaceCounter = "deleteRaceCounter"

	/************************* Scheduler metrics ****************************/
	/*
		timeline tiers that fired and produced a create request
	*/
	ScheduleFiredCounter = "scheduleFiredCounter"

	/*
		timeline tiers that were due but skipped (tier disabled, or already snapshotted this period)
	*/
	ScheduleNoOpCounter = "scheduleNoOpCounter"

	/************************* Retention metrics ****************************/
	/*
		reconcile passes run
	*/
	ReconcileRunsCounter = "reconcileRunsCounter"

	/*
		time to run one reconcile pass over a subvolume
	*/
	ReconcileLatency_ms = "reconcileLatency_ms"

	/************************* Hook metrics *********************************/
	/*
		vcs events that created a snapshot
	*/
	HookSnapshotCounter = "hookSnapshotCounter"

	/*
		vcs events whose snapshot failed or timed out; the vcs operation proceeded anyway
	*/
	HookFailOpenCounter = "hookFailOpenCounter"

	/************************* Restore metrics ******************************/
	/*
		paths restored successfully
	*/
	RestorePathOkCounter = "restorePathOkCounter"

	/*
		paths that failed to restore
	*/
	RestorePathErrCounter = "restorePathErrCounter"

	/*
		full subvolume rollbacks completed
	*/
	RollbackOkCounter = "rollbackOkCounter"

	/*
		time spent restoring the paths of one session
	*/
	RestoreLatency_ms = "restoreLatency_ms"

	/************************* Monitor metrics ******************************/
	/*
		percent of the filesystem in use
	*/
	UsedPercentGauge = "usedPercentGauge"

	/*
		bytes free on the filesystem
	*/
	FreeBytesGauge = "freeBytesGauge"

	/*
		snapshots present for the subvolume
	*/
	SnapshotCountGauge = "snapshotCountGauge"

	/*
		protected snapshots present for the subvolume
	*/
	ProtectedCountGauge = "protectedCountGauge"

	/*
		age in seconds of the oldest snapshot
	*/
	OldestSnapshotAgeSecGauge = "oldestSnapshotAgeSecGauge"

	/*
		alerts raised by the last status check
	*/
	AlertCounter = "alertCounter"
)
