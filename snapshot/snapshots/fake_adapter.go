package snapshots

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devrig/snapkeep/snapshot"
)

// Operation names used for error injection and call recording.
const (
	OpCreate        = "create"
	OpList          = "list"
	OpDelete        = "delete"
	OpDiff          = "diff"
	OpRestorePath   = "restore-path"
	OpRestoreSubvol = "restore-subvolume"
	OpUsage         = "usage"
	OpActiveRoot    = "active-root"
)

const (
	defaultUsedPct    = 10.0
	defaultTotalBytes = 100 << 30
)

// Call records one invocation of the FakeAdapter.
type Call struct {
	Op        string
	Subvolume string
	ID        snapshot.ID
	Path      string
	Kind      snapshot.Kind
	Protected bool
}

type fakeSnapshot struct {
	snap  snapshot.Snapshot
	files map[string]string
}

type fakeSubvolume struct {
	files  map[string]string
	snaps  []*fakeSnapshot
	nextID snapshot.ID
	usage  snapshot.Usage
	root   bool
}

// FakeAdapter is an in-memory snapshot.Adapter. Each subvolume is a flat map of
// slash-separated file paths to contents; snapshots copy that map.
type FakeAdapter struct {
	mu    sync.Mutex
	subvs map[string]*fakeSubvolume
	calls []Call

	// Now supplies creation times. Defaults to time.Now.
	Now func() time.Time

	// Fail, when set, is consulted before every operation; a non-nil return is
	// wrapped in a *snapshot.FilesystemError (unless it already is a snapshot error).
	Fail func(op string, subvolume string, id snapshot.ID, path string) error

	// Delay makes every operation block for this long, or until ctx is done.
	Delay time.Duration
}

var _ snapshot.Adapter = &FakeAdapter{}

func NewFakeAdapter(subvolumes ...string) *FakeAdapter {
	f := &FakeAdapter{subvs: make(map[string]*fakeSubvolume), Now: time.Now}
	for _, sv := range subvolumes {
		f.AddSubvolume(sv)
	}
	return f
}

func (f *FakeAdapter) AddSubvolume(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subv(name)
}

// subv returns the named subvolume, creating it if needed. f.mu must be held.
func (f *FakeAdapter) subv(name string) *fakeSubvolume {
	if sv, ok := f.subvs[name]; ok {
		return sv
	}
	sv := &fakeSubvolume{
		files:  make(map[string]string),
		nextID: 1,
		usage: snapshot.Usage{
			UsedPercent: defaultUsedPct,
			TotalBytes:  defaultTotalBytes,
			FreeBytes:   uint64(defaultTotalBytes * (100 - defaultUsedPct) / 100),
		},
	}
	f.subvs[name] = sv
	return sv
}

// FailAlways makes every operation fail with err.
func (f *FakeAdapter) FailAlways(err error) {
	f.Fail = func(string, string, snapshot.ID, string) error { return err }
}

// FailOp makes every invocation of op fail with err.
func (f *FakeAdapter) FailOp(op string, err error) {
	f.Fail = func(o string, _ string, _ snapshot.ID, _ string) error {
		if o == op {
			return err
		}
		return nil
	}
}

func (f *FakeAdapter) SetActiveRoot(subvolume string, root bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subv(subvolume).root = root
}

func (f *FakeAdapter) SetUsage(subvolume string, u snapshot.Usage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subv(subvolume).usage = u
}

func (f *FakeAdapter) WriteFile(subvolume, path, contents string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subv(subvolume).files[path] = contents
}

func (f *FakeAdapter) RemoveFile(subvolume, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subv(subvolume).files, path)
}

func (f *FakeAdapter) ReadFile(subvolume, path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.subv(subvolume).files[path]
	return c, ok
}

// Seed inserts an existing snapshot as is, bypassing id assignment and the clock.
func (f *FakeAdapter) Seed(s snapshot.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sv := f.subv(s.Subvolume)
	if s.ID == 0 {
		s.ID = sv.nextID
	}
	if s.ID >= sv.nextID {
		sv.nextID = s.ID + 1
	}
	sv.snaps = append(sv.snaps, &fakeSnapshot{snap: s, files: copyFiles(sv.files)})
}

// Calls returns a copy of every recorded invocation, in order.
func (f *FakeAdapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded invocations of op.
func (f *FakeAdapter) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeAdapter) CreateSnapshot(ctx context.Context, subvolume string, kind snapshot.Kind, description string, tags snapshot.Tags, protected bool) (snapshot.Snapshot, error) {
	if err := f.begin(ctx, Call{Op: OpCreate, Subvolume: subvolume, Kind: kind, Protected: protected}); err != nil {
		return snapshot.Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, ok := f.subvs[subvolume]
	if !ok {
		return snapshot.Snapshot{}, noSuchSubvolume(OpCreate, subvolume)
	}
	s := snapshot.Snapshot{
		ID:          sv.nextID,
		Subvolume:   subvolume,
		CreatedAt:   f.Now(),
		Kind:        kind,
		Description: description,
		Tags:        copyTags(tags),
		Protected:   protected,
	}
	sv.nextID++
	sv.snaps = append(sv.snaps, &fakeSnapshot{snap: s, files: copyFiles(sv.files)})
	return s, nil
}

func (f *FakeAdapter) ListSnapshots(ctx context.Context, subvolume string) ([]snapshot.Snapshot, error) {
	if err := f.begin(ctx, Call{Op: OpList, Subvolume: subvolume}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, ok := f.subvs[subvolume]
	if !ok {
		return nil, noSuchSubvolume(OpList, subvolume)
	}
	out := make([]snapshot.Snapshot, 0, len(sv.snaps))
	for _, s := range sv.snaps {
		c := s.snap
		c.Tags = copyTags(s.snap.Tags)
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeAdapter) DeleteSnapshot(ctx context.Context, subvolume string, id snapshot.ID) error {
	if err := f.begin(ctx, Call{Op: OpDelete, Subvolume: subvolume, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, ok := f.subvs[subvolume]
	if !ok {
		return noSuchSubvolume(OpDelete, subvolume)
	}
	for i, s := range sv.snaps {
		if s.snap.ID == id {
			sv.snaps = append(sv.snaps[:i], sv.snaps[i+1:]...)
			return nil
		}
	}
	return snapshot.NewNotFoundError(subvolume, id)
}

func (f *FakeAdapter) Diff(ctx context.Context, subvolume string, id snapshot.ID) ([]snapshot.PathChange, error) {
	if err := f.begin(ctx, Call{Op: OpDiff, Subvolume: subvolume, ID: id}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, snap, err := f.lookup(OpDiff, subvolume, id)
	if err != nil {
		return nil, err
	}
	var changes []snapshot.PathChange
	for p, c := range sv.files {
		old, ok := snap.files[p]
		switch {
		case !ok:
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Added})
		case old != c:
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Modified})
		}
	}
	for p := range snap.files {
		if _, ok := sv.files[p]; !ok {
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Removed})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func (f *FakeAdapter) RestorePath(ctx context.Context, subvolume string, id snapshot.ID, path string) error {
	if err := f.begin(ctx, Call{Op: OpRestorePath, Subvolume: subvolume, ID: id, Path: path}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, snap, err := f.lookup(OpRestorePath, subvolume, id)
	if err != nil {
		return err
	}
	path = strings.Trim(path, "/")
	for p := range sv.files {
		if under(p, path) {
			delete(sv.files, p)
		}
	}
	for p, c := range snap.files {
		if under(p, path) {
			sv.files[p] = c
		}
	}
	return nil
}

func (f *FakeAdapter) RestoreSubvolume(ctx context.Context, subvolume string, id snapshot.ID) error {
	if err := f.begin(ctx, Call{Op: OpRestoreSubvol, Subvolume: subvolume, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, snap, err := f.lookup(OpRestoreSubvol, subvolume, id)
	if err != nil {
		return err
	}
	if sv.root {
		return snapshot.NewFilesystemError(OpRestoreSubvol, subvolume, id, fmt.Errorf("subvolume is the active root"))
	}
	sv.files = copyFiles(snap.files)
	return nil
}

func (f *FakeAdapter) Usage(ctx context.Context, subvolume string) (snapshot.Usage, error) {
	if err := f.begin(ctx, Call{Op: OpUsage, Subvolume: subvolume}); err != nil {
		return snapshot.Usage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, ok := f.subvs[subvolume]
	if !ok {
		return snapshot.Usage{}, noSuchSubvolume(OpUsage, subvolume)
	}
	return sv.usage, nil
}

func (f *FakeAdapter) ActiveRoot(ctx context.Context, subvolume string) (bool, error) {
	if err := f.begin(ctx, Call{Op: OpActiveRoot, Subvolume: subvolume}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sv, ok := f.subvs[subvolume]
	if !ok {
		return false, noSuchSubvolume(OpActiveRoot, subvolume)
	}
	return sv.root, nil
}

// begin records the call, then applies the configured delay and injected failure.
func (f *FakeAdapter) begin(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	delay, fail := f.Delay, f.Fail
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return snapshot.NewPathError(c.Op, c.Subvolume, c.ID, c.Path, err)
	}
	if fail != nil {
		if err := fail(c.Op, c.Subvolume, c.ID, c.Path); err != nil {
			if snapshot.IsFilesystem(err) || snapshot.IsNotFound(err) {
				return err
			}
			return snapshot.NewPathError(c.Op, c.Subvolume, c.ID, c.Path, err)
		}
	}
	return nil
}

func (f *FakeAdapter) lookup(op string, subvolume string, id snapshot.ID) (*fakeSubvolume, *fakeSnapshot, error) {
	sv, ok := f.subvs[subvolume]
	if !ok {
		return nil, nil, noSuchSubvolume(op, subvolume)
	}
	for _, s := range sv.snaps {
		if s.snap.ID == id {
			return sv, s, nil
		}
	}
	return nil, nil, snapshot.NewNotFoundError(subvolume, id)
}

func noSuchSubvolume(op string, subvolume string) error {
	return snapshot.NewFilesystemError(op, subvolume, 0, fmt.Errorf("no such subvolume"))
}

func under(p, root string) bool {
	return root == "" || p == root || strings.HasPrefix(p, root+"/")
}

func copyFiles(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTags(in snapshot.Tags) snapshot.Tags {
	if in == nil {
		return nil
	}
	out := make(snapshot.Tags, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
