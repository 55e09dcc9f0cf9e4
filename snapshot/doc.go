/*
package snapshot holds the data model of snapkeep and the contract of the store it manages.

A Subvolume is an independently mountable dataset on a copy-on-write store. A Snapshot is an
immutable, read-only, point-in-time copy of a Subvolume. Snapshots are created, listed,
diffed, restored from and deleted only through an Adapter, which wraps the store's primitives.

There is no separately persisted snapshot index: every caller re-derives it from
Adapter.ListSnapshots, so concurrent processes never work from a stale copy.

Schedulers and hook dispatchers produce Requests; Create executes a Request against an
Adapter, retrying transient store failures.
*/
package snapshot
