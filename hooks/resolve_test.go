package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/snapshot"
)

func TestResolveLongestPrefix(t *testing.T) {
	r := NewResolver(map[string]string{
		"root": "/",
		"home": "/home",
		"work": "/home/dev/work/",
	})
	tests := map[string]string{
		"/home/dev/work/repoA":   "work",
		"/home/dev/work":         "work",
		"/home/dev/workspace/x":  "home",
		"/home/dev/projects/abc": "home",
		"/srv/git/repo":          "root",
	}
	for dir, want := range tests {
		got, err := r.Resolve(dir)
		require.NoError(t, err, dir)
		assert.Equal(t, want, got, dir)
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver(map[string]string{"home": "/home"})
	_, err := r.Resolve("/srv/repo")
	assert.True(t, snapshot.IsValidation(err))
}
