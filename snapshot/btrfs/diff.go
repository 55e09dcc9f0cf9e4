package btrfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/devrig/snapkeep/snapshot"
)

const chunkSize = 64 << 10

// tree maps slash separated paths relative to a root to their file info.
type tree map[string]os.FileInfo

// walk collects every entry under root, except the directories in skip.
func (a *Adapter) walk(ctx context.Context, root string, skip ...string) (tree, error) {
	t := make(tree)
	err := afero.Walk(a.fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, s := range skip {
			if path == s && fi.IsDir() {
				return filepath.SkipDir
			}
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		t[filepath.ToSlash(rel)] = fi
		return nil
	})
	return t, err
}

// Diff compares the live subvolume against snapshot id by file type, size, mode
// and content. Directories are reported only when added or removed.
func (a *Adapter) Diff(ctx context.Context, subvolume string, id snapshot.ID) ([]snapshot.PathChange, error) {
	const op = "diff"
	sv, err := a.live(op, subvolume)
	if err != nil {
		return nil, err
	}
	snapPath, err := a.lookup(op, subvolume, id)
	if err != nil {
		return nil, err
	}
	old, err := a.walk(ctx, snapPath)
	if err != nil {
		return nil, snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	// The snapshot root may live inside the subvolume it snapshots.
	cur, err := a.walk(ctx, sv.Path, filepath.Clean(a.config.SnapshotRoot))
	if err != nil {
		return nil, snapshot.NewFilesystemError(op, subvolume, id, err)
	}

	var changes []snapshot.PathChange
	for p, fi := range cur {
		ofi, ok := old[p]
		if !ok {
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Added})
			continue
		}
		same, err := a.same(filepath.Join(snapPath, p), ofi, filepath.Join(sv.Path, p), fi)
		if err != nil {
			return nil, snapshot.NewPathError(op, subvolume, id, p, err)
		}
		if !same {
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Modified})
		}
	}
	for p := range old {
		if _, ok := cur[p]; !ok {
			changes = append(changes, snapshot.PathChange{Path: p, Change: snapshot.Removed})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func (a *Adapter) same(oldPath string, ofi os.FileInfo, newPath string, fi os.FileInfo) (bool, error) {
	if ofi.Mode() != fi.Mode() {
		return false, nil
	}
	switch {
	case fi.IsDir():
		return true, nil
	case fi.Mode()&os.ModeSymlink != 0:
		lr, ok := a.fs.(afero.LinkReader)
		if !ok {
			return true, nil
		}
		ot, err := lr.ReadlinkIfPossible(oldPath)
		if err != nil {
			return false, err
		}
		nt, err := lr.ReadlinkIfPossible(newPath)
		return ot == nt, err
	case fi.Mode().IsRegular():
		if ofi.Size() != fi.Size() {
			return false, nil
		}
		return a.sameContent(oldPath, newPath)
	default:
		return true, nil
	}
}

func (a *Adapter) sameContent(p1, p2 string) (bool, error) {
	f1, err := a.fs.Open(p1)
	if err != nil {
		return false, err
	}
	defer f1.Close()
	f2, err := a.fs.Open(p2)
	if err != nil {
		return false, err
	}
	defer f2.Close()

	b1 := make([]byte, chunkSize)
	b2 := make([]byte, chunkSize)
	for {
		n1, err1 := io.ReadFull(f1, b1)
		n2, err2 := io.ReadFull(f2, b2)
		if n1 != n2 || !bytes.Equal(b1[:n1], b2[:n2]) {
			return false, nil
		}
		end1 := err1 == io.EOF || err1 == io.ErrUnexpectedEOF
		end2 := err2 == io.EOF || err2 == io.ErrUnexpectedEOF
		if end1 || end2 {
			return end1 == end2, nil
		}
		if err1 != nil {
			return false, err1
		}
		if err2 != nil {
			return false, err2
		}
	}
}
