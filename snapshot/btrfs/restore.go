package btrfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/devrig/snapkeep/snapshot"
)

const (
	restoreSuffix = ".snapkeep-restore"
	asideSuffix   = ".snapkeep-replaced"
)

// cleanRel turns a restore path into a slash separated path relative to the
// subvolume root, refusing paths that leave it.
func cleanRel(path string) (string, error) {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path leaves the subvolume")
		}
	}
	rel := strings.Trim(filepath.Clean("/"+path), "/")
	if rel == "" {
		return "", fmt.Errorf("path is the subvolume root")
	}
	return rel, nil
}

// RestorePath replaces the live version of path with the snapshot's. The
// snapshot's version is copied next to its destination and renamed over it, so
// the live path is either fully restored or left as it was. A path the
// snapshot does not have is removed.
func (a *Adapter) RestorePath(ctx context.Context, subvolume string, id snapshot.ID, path string) error {
	const op = "restore-path"
	sv, err := a.live(op, subvolume)
	if err != nil {
		return err
	}
	snapPath, err := a.lookup(op, subvolume, id)
	if err != nil {
		return err
	}
	rel, err := cleanRel(path)
	if err != nil {
		return snapshot.NewPathError(op, subvolume, id, path, err)
	}
	src := filepath.Join(snapPath, filepath.FromSlash(rel))
	dst := filepath.Join(sv.Path, filepath.FromSlash(rel))

	fi, err := lstat(a.fs, src)
	if os.IsNotExist(err) {
		if err := a.remove(dst); err != nil {
			return snapshot.NewPathError(op, subvolume, id, rel, err)
		}
		log.Debugf("Removed %s, absent from %s#%d", dst, subvolume, id)
		return nil
	}
	if err != nil {
		return snapshot.NewPathError(op, subvolume, id, rel, err)
	}
	if err := a.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return snapshot.NewPathError(op, subvolume, id, rel, err)
	}

	tmp := dst + restoreSuffix
	a.fs.RemoveAll(tmp)
	if fi.IsDir() {
		err = a.copyDir(ctx, src, tmp)
	} else {
		err = a.copyEntry(src, fi, tmp)
	}
	if err == nil {
		err = a.swap(tmp, dst)
	}
	if err != nil {
		a.fs.RemoveAll(tmp)
		return snapshot.NewPathError(op, subvolume, id, rel, err)
	}
	return nil
}

// copyDir copies the directory tree at src to dst, which must not exist.
func (a *Adapter) copyDir(ctx context.Context, src, dst string) error {
	return afero.Walk(a.fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			if err := a.fs.MkdirAll(target, fi.Mode().Perm()); err != nil {
				return err
			}
			return a.fs.Chmod(target, fi.Mode().Perm())
		}
		return a.copyEntry(path, fi, target)
	})
}

// swap puts the complete copy at tmp in place of dst. When a directory is
// involved the live version is moved aside first and put back if the rename
// fails.
func (a *Adapter) swap(tmp, dst string) error {
	dfi, err := lstat(a.fs, dst)
	if os.IsNotExist(err) {
		return a.fs.Rename(tmp, dst)
	}
	if err != nil {
		return err
	}
	tfi, err := lstat(a.fs, tmp)
	if err != nil {
		return err
	}
	if !dfi.IsDir() && !tfi.IsDir() {
		// rename replaces a file or symlink in one step
		return a.fs.Rename(tmp, dst)
	}

	aside := dst + asideSuffix
	a.fs.RemoveAll(aside)
	if err := a.fs.Rename(dst, aside); err != nil {
		return err
	}
	if err := a.fs.Rename(tmp, dst); err != nil {
		if rerr := a.fs.Rename(aside, dst); rerr != nil {
			log.Errorf("Restore of %s failed and the live version is left at %s: %v", dst, aside, rerr)
		}
		return err
	}
	if err := a.fs.RemoveAll(aside); err != nil {
		log.Warnf("Restored %s but could not remove the replaced copy %s: %v", dst, aside, err)
	}
	return nil
}

// remove deletes dst by moving it aside first, so a failure never leaves half a
// directory behind at dst.
func (a *Adapter) remove(dst string) error {
	if _, err := lstat(a.fs, dst); os.IsNotExist(err) {
		return nil
	}
	aside := dst + asideSuffix
	a.fs.RemoveAll(aside)
	if err := a.fs.Rename(dst, aside); err != nil {
		return err
	}
	if err := a.fs.RemoveAll(aside); err != nil {
		log.Warnf("Could not remove %s: %v", aside, err)
	}
	return nil
}

// copyEntry copies a regular file or symlink, keeping its mode and times.
func (a *Adapter) copyEntry(src string, fi os.FileInfo, dst string) error {
	if fi.Mode()&os.ModeSymlink != 0 {
		lr, lok := a.fs.(afero.LinkReader)
		sl, sok := a.fs.(afero.Linker)
		if !lok || !sok {
			return errors.Errorf("cannot restore symlink %s on this filesystem", src)
		}
		target, err := lr.ReadlinkIfPossible(src)
		if err != nil {
			return err
		}
		return sl.SymlinkIfPossible(target, dst)
	}
	if !fi.Mode().IsRegular() {
		log.Warnf("Skipping %s: not a regular file", src)
		return nil
	}

	in, err := a.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := a.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := a.fs.Chmod(dst, fi.Mode().Perm()); err != nil {
		return err
	}
	return a.fs.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// RestoreSubvolume moves the live subvolume aside to <path>.pre-rollback-<id>
// and puts a writable snapshot of id in its place. The old subvolume is kept
// for the operator to inspect and remove.
func (a *Adapter) RestoreSubvolume(ctx context.Context, subvolume string, id snapshot.ID) error {
	const op = "restore-subvolume"
	sv, err := a.live(op, subvolume)
	if err != nil {
		return err
	}
	if active, _ := a.ActiveRoot(ctx, subvolume); active {
		return snapshot.NewFilesystemError(op, subvolume, id, errors.New("subvolume is the active root"))
	}
	snapPath, err := a.lookup(op, subvolume, id)
	if err != nil {
		return err
	}

	live := filepath.Clean(sv.Path)
	aside := fmt.Sprintf("%s.pre-rollback-%d", live, id)
	if _, err := a.fs.Stat(aside); err == nil {
		return snapshot.NewFilesystemError(op, subvolume, id, errors.Errorf("%s already exists", aside))
	}
	if err := a.fs.Rename(live, aside); err != nil {
		return snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	if err := a.btrfs(ctx, "subvolume", "snapshot", snapPath, live); err != nil {
		if rerr := a.fs.Rename(aside, live); rerr != nil {
			log.Errorf("Rollback of %s failed and the live subvolume is left at %s: %v", subvolume, aside, rerr)
		}
		return snapshot.NewFilesystemError(op, subvolume, id, err)
	}
	log.WithFields(log.Fields{
		"subvolume": subvolume,
		"snapshot":  id,
		"previous":  aside,
	}).Info("Rolled back subvolume")
	return nil
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(path)
		return fi, err
	}
	return fs.Stat(path)
}
