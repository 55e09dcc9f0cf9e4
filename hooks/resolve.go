package hooks

import (
	"path/filepath"
	"strings"

	"github.com/devrig/snapkeep/snapshot"
)

// Resolver maps a repository path to the subvolume holding it.
type Resolver struct {
	paths map[string]string
}

// NewResolver takes subvolume name to mount path.
func NewResolver(paths map[string]string) *Resolver {
	r := &Resolver{paths: make(map[string]string, len(paths))}
	for sv, p := range paths {
		r.paths[sv] = filepath.Clean(p)
	}
	return r
}

// Resolve returns the subvolume with the longest path containing dir.
func (r *Resolver) Resolve(dir string) (string, error) {
	dir = filepath.Clean(dir)
	best, bestLen := "", -1
	for sv, p := range r.paths {
		if !contains(p, dir) {
			continue
		}
		if len(p) > bestLen || len(p) == bestLen && sv < best {
			best, bestLen = sv, len(p)
		}
	}
	if best == "" {
		return "", snapshot.NewValidationError("no configured subvolume contains %s", dir)
	}
	return best, nil
}

func contains(root, dir string) bool {
	if root == "/" || root == dir {
		return true
	}
	return strings.HasPrefix(dir, root+string(filepath.Separator))
}
