// Package repo provides the little git plumbing the hook dispatcher needs:
// locating a repository's top level, its name and its hooks directory.
package repo

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Repository represents a valid Git repository.
type Repository struct {
	dir string
}

// Where r lives on disk
func (r *Repository) Dir() string {
	return r.dir
}

// Name is the base name of the repository's top level directory.
func (r *Repository) Name() string {
	return filepath.Base(r.dir)
}

// Run a git command in r
func (r *Repository) Run(args ...string) (string, error) {
	return r.RunCmd(r.Command(args...))
}

// Command creates an exec.Cmd to use to run in this Git Repo
func (r *Repository) Command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	return cmd
}

// RunCmd runs cmd (that must have been created by Command), returning its output and error
func (r *Repository) RunCmd(cmd *exec.Cmd) (string, error) {
	log.Debug("repo.Repository.Run ", cmd.Args[1:])
	data, err := cmd.Output()
	if exitErr, ok := err.(*exec.ExitError); ok {
		log.Debug("repo.Repository.Run error: ", string(exitErr.Stderr))
		return string(data), fmt.Errorf("git %s: %v: %s",
			strings.Join(cmd.Args[1:], " "), err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return string(data), err
}

// HooksDir returns the absolute path of the directory git runs hooks from,
// honoring core.hooksPath and linked worktrees.
func (r *Repository) HooksDir() (string, error) {
	out, err := r.Run("rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.dir, dir)
	}
	return dir, nil
}

// Head returns the sha HEAD points at, or "" in a repository without commits.
func (r *Repository) Head() string {
	out, err := r.Run("rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		return ""
	}
	sha, err := validateSha(out)
	if err != nil {
		return ""
	}
	return sha
}

// validateSha trims and validates sha as a git sha, returning the valid sha xor an error
func validateSha(sha string) (string, error) {
	if len(sha) == 40 || len(sha) == 41 && sha[40] == '\n' {
		return sha[0:40], nil
	}
	return "", fmt.Errorf("sha not 40 or 41 (with a \\n) characters: %q", sha)
}

// NewRepository creates a new Repository for the repository containing dir.
func NewRepository(dir string) (*Repository, error) {
	r := &Repository{dir}
	topLevel, err := r.Run("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	topLevel = strings.TrimSpace(topLevel)
	log.Debug("repo.NewRepository: ", dir, " ", topLevel)
	r.dir = topLevel
	return r, nil
}

// Try to initialize a new git repo in the given directory.
func InitRepo(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return NewRepository(dir)
}
