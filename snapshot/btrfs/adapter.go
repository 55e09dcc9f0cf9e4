// Package btrfs implements snapshot.Adapter on btrfs subvolumes.
//
// Snapshots of a subvolume live under the snapshot root:
//
//	<root>/<subvolume>/<id>/snapshot   read-only btrfs snapshot of the live subvolume
//	<root>/<subvolume>/<id>/info.yaml  kind, description, tags, protection, creation time
//	<root>/<subvolume>/.last-id        largest id ever reserved; ids are never reused
//
// Snapshot creation and deletion go through the btrfs command line tool. Reading,
// diffing and restoring files goes through an afero.Fs so it can be tested in memory.
package btrfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/devrig/snapkeep/common/os/exec"
	"github.com/devrig/snapkeep/snapshot"
)

const (
	snapshotName = "snapshot"
	infoName     = "info.yaml"
	lastIDName   = ".last-id"

	// reserveAttempts bounds the id reservation loop when creators race.
	reserveAttempts = 16
)

// Subvolume is a live subvolume managed by the adapter.
type Subvolume struct {
	Path string
	// ActiveRoot marks the root of the running system, which cannot be rolled back.
	ActiveRoot bool
}

type Config struct {
	SnapshotRoot string
	Binary       string
	Subvolumes   map[string]Subvolume
}

type Adapter struct {
	fs     afero.Fs
	runner exec.Runner
	config Config

	// Now stamps new snapshots. Defaults to time.Now.
	Now func() time.Time

	statfs func(path string, buf *unix.Statfs_t) error
}

var _ snapshot.Adapter = &Adapter{}

func NewAdapter(fs afero.Fs, runner exec.Runner, config Config) *Adapter {
	if config.Binary == "" {
		config.Binary = "btrfs"
	}
	return &Adapter{
		fs:     fs,
		runner: runner,
		config: config,
		Now:    time.Now,
		statfs: unix.Statfs,
	}
}

// info is the sidecar stored next to each snapshot.
type info struct {
	Kind        snapshot.Kind     `yaml:"kind"`
	Description string            `yaml:"description,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Protected   bool              `yaml:"protected"`
	CreatedAt   time.Time         `yaml:"created_at"`
}

func (a *Adapter) live(op, subvolume string) (Subvolume, error) {
	sv, ok := a.config.Subvolumes[subvolume]
	if !ok {
		return Subvolume{}, snapshot.NewFilesystemError(op, subvolume, 0, errors.New("unknown subvolume"))
	}
	return sv, nil
}

func (a *Adapter) subvolumeDir(subvolume string) string {
	return filepath.Join(a.config.SnapshotRoot, subvolume)
}

func (a *Adapter) snapshotDir(subvolume string, id snapshot.ID) string {
	return filepath.Join(a.subvolumeDir(subvolume), id.String())
}

func (a *Adapter) snapshotPath(subvolume string, id snapshot.ID) string {
	return filepath.Join(a.snapshotDir(subvolume, id), snapshotName)
}

// btrfs runs the btrfs tool until it exits or ctx is done.
func (a *Adapter) btrfs(ctx context.Context, args ...string) error {
	rr := a.runner.Run(ctx, a.config.Binary, args...)
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "btrfs %s", strings.Join(args, " "))
	}
	if err := rr.Err(); err != nil {
		return errors.Wrapf(err, "btrfs %s", strings.Join(args, " "))
	}
	return nil
}

// ids returns the ids of the snapshot directories of subvolume, ascending.
func (a *Adapter) ids(subvolume string) ([]snapshot.ID, error) {
	infos, err := afero.ReadDir(a.fs, a.subvolumeDir(subvolume))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []snapshot.ID
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(fi.Name(), 10, 64)
		if err != nil || n == 0 {
			continue
		}
		ids = append(ids, snapshot.ID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// lastID reads the subvolume's high-water mark, the largest id ever reserved.
func (a *Adapter) lastID(subvolume string) (snapshot.ID, error) {
	path := filepath.Join(a.subvolumeDir(subvolume), lastIDName)
	b, err := afero.ReadFile(a.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt %s", path)
	}
	return snapshot.ID(n), nil
}

// raiseLastID moves the high-water mark up to id. It never moves it down.
func (a *Adapter) raiseLastID(subvolume string, id snapshot.ID) error {
	last, err := a.lastID(subvolume)
	if err != nil {
		return err
	}
	if last >= id {
		return nil
	}
	path := filepath.Join(a.subvolumeDir(subvolume), lastIDName)
	tmp := fmt.Sprintf("%s.%d", path, id)
	if err := afero.WriteFile(a.fs, tmp, []byte(id.String()+"\n"), 0640); err != nil {
		return err
	}
	return a.fs.Rename(tmp, path)
}

// reserve claims the next id by creating its directory. Mkdir fails if the
// directory exists, so two creators never get the same id. Ids come from above
// both the high-water mark and every existing directory, so an id is never
// handed out twice, even after its snapshot was deleted.
func (a *Adapter) reserve(subvolume string) (snapshot.ID, error) {
	if err := a.fs.MkdirAll(a.subvolumeDir(subvolume), 0750); err != nil {
		return 0, err
	}
	for i := 0; i < reserveAttempts; i++ {
		ids, err := a.ids(subvolume)
		if err != nil {
			return 0, err
		}
		next, err := a.lastID(subvolume)
		if err != nil {
			return 0, err
		}
		if len(ids) > 0 && ids[len(ids)-1] > next {
			next = ids[len(ids)-1]
		}
		next++
		err = a.fs.Mkdir(a.snapshotDir(subvolume, next), 0750)
		if err == nil {
			if err := a.raiseLastID(subvolume, next); err != nil {
				a.fs.RemoveAll(a.snapshotDir(subvolume, next))
				return 0, err
			}
			return next, nil
		}
		if !os.IsExist(err) {
			return 0, err
		}
		log.Debugf("Snapshot id %s#%d taken, retrying", subvolume, next)
	}
	return 0, fmt.Errorf("could not reserve a snapshot id after %d attempts", reserveAttempts)
}

func (a *Adapter) CreateSnapshot(ctx context.Context, subvolume string, kind snapshot.Kind, description string, tags snapshot.Tags, protected bool) (snapshot.Snapshot, error) {
	const op = "create"
	sv, err := a.live(op, subvolume)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	id, err := a.reserve(subvolume)
	if err != nil {
		return snapshot.Snapshot{}, snapshot.NewFilesystemError(op, subvolume, 0, err)
	}
	dir := a.snapshotDir(subvolume, id)

	if err := a.btrfs(ctx, "subvolume", "snapshot", "-r", sv.Path, filepath.Join(dir, snapshotName)); err != nil {
		a.fs.RemoveAll(dir)
		return snapshot.Snapshot{}, snapshot.NewFilesystemError(op, subvolume, id, err)
	}

	s := snapshot.Snapshot{
		ID:          id,
		Subvolume:   subvolume,
		CreatedAt:   a.Now().UTC().Truncate(time.Second),
		Kind:        kind,
		Description: description,
		Tags:        tags,
		Protected:   protected,
	}
	if err := a.writeInfo(dir, s); err != nil {
		// Without a sidecar the snapshot is invisible, so take it back out.
		if derr := a.btrfs(context.Background(), "subvolume", "delete", filepath.Join(dir, snapshotName)); derr != nil {
			log.Errorf("Failed to remove snapshot %s without metadata: %v", dir, derr)
		} else {
			a.fs.RemoveAll(dir)
		}
		return snapshot.Snapshot{}, snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	return s, nil
}

func (a *Adapter) writeInfo(dir string, s snapshot.Snapshot) error {
	b, err := yaml.Marshal(info{
		Kind:        s.Kind,
		Description: s.Description,
		Tags:        s.Tags,
		Protected:   s.Protected,
		CreatedAt:   s.CreatedAt,
	})
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+infoName)
	if err := afero.WriteFile(a.fs, tmp, b, 0640); err != nil {
		return err
	}
	return a.fs.Rename(tmp, filepath.Join(dir, infoName))
}

func (a *Adapter) readInfo(subvolume string, id snapshot.ID) (snapshot.Snapshot, error) {
	b, err := afero.ReadFile(a.fs, filepath.Join(a.snapshotDir(subvolume, id), infoName))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	var i info
	if err := yaml.Unmarshal(b, &i); err != nil {
		return snapshot.Snapshot{}, err
	}
	if _, err := snapshot.ParseKind(string(i.Kind)); err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Snapshot{
		ID:          id,
		Subvolume:   subvolume,
		CreatedAt:   i.CreatedAt,
		Kind:        i.Kind,
		Description: i.Description,
		Tags:        i.Tags,
		Protected:   i.Protected,
	}, nil
}

// ListSnapshots skips snapshot directories without a readable sidecar: those are
// creations that are still running or died half way.
func (a *Adapter) ListSnapshots(ctx context.Context, subvolume string) ([]snapshot.Snapshot, error) {
	const op = "list"
	if _, err := a.live(op, subvolume); err != nil {
		return nil, err
	}
	ids, err := a.ids(subvolume)
	if err != nil {
		return nil, snapshot.NewFilesystemError(op, subvolume, 0, err)
	}
	snaps := make([]snapshot.Snapshot, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, snapshot.NewFilesystemError(op, subvolume, 0, err)
		}
		s, err := a.readInfo(subvolume, id)
		if err != nil {
			log.Warnf("Skipping snapshot %s#%d: %v", subvolume, id, err)
			continue
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

func (a *Adapter) DeleteSnapshot(ctx context.Context, subvolume string, id snapshot.ID) error {
	const op = "delete"
	if _, err := a.live(op, subvolume); err != nil {
		return err
	}
	dir := a.snapshotDir(subvolume, id)
	if _, err := a.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return snapshot.NewNotFoundError(subvolume, id)
		}
		return snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	path := filepath.Join(dir, snapshotName)
	if _, err := a.fs.Stat(path); err == nil {
		if err := a.btrfs(ctx, "subvolume", "delete", path); err != nil {
			return snapshot.NewFilesystemError(op, subvolume, id, err)
		}
	}
	if err := a.fs.RemoveAll(dir); err != nil {
		return snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	return nil
}

// lookup returns the path of an existing snapshot, or a *snapshot.NotFoundError.
func (a *Adapter) lookup(op, subvolume string, id snapshot.ID) (string, error) {
	path := a.snapshotPath(subvolume, id)
	if _, err := a.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", snapshot.NewNotFoundError(subvolume, id)
		}
		return "", snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	return path, nil
}

func (a *Adapter) Usage(ctx context.Context, subvolume string) (snapshot.Usage, error) {
	const op = "usage"
	sv, err := a.live(op, subvolume)
	if err != nil {
		return snapshot.Usage{}, err
	}
	var st unix.Statfs_t
	if err := a.statfs(sv.Path, &st); err != nil {
		return snapshot.Usage{}, snapshot.NewFilesystemError(op, subvolume, 0, err)
	}
	return usageOf(st), nil
}

// usageOf computes usage the way df does: used against what is available to
// unprivileged users, so reserved blocks do not count as free.
func usageOf(st unix.Statfs_t) snapshot.Usage {
	bsize := uint64(st.Bsize)
	used := uint64(st.Blocks) - uint64(st.Bfree)
	avail := uint64(st.Bavail)
	u := snapshot.Usage{
		FreeBytes:  avail * bsize,
		TotalBytes: uint64(st.Blocks) * bsize,
	}
	if used+avail > 0 {
		u.UsedPercent = float64(used) * 100 / float64(used+avail)
	}
	return u
}

func (a *Adapter) ActiveRoot(ctx context.Context, subvolume string) (bool, error) {
	sv, err := a.live("active-root", subvolume)
	if err != nil {
		return false, err
	}
	return sv.ActiveRoot || filepath.Clean(sv.Path) == "/", nil
}
