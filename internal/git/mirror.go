// Package git moves whole repositories between a hosting service and a local
// mirror through the git CLI.
package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const extraHeaderKey = "http.extraHeader"

// Auth holds HTTP basic credentials for git over https.
type Auth struct {
	Username string
	Token    string
}

// Mirror clones and pushes bare mirror repositories.
type Mirror struct {
	runner CommandRunner
}

// NewMirror returns a Mirror backed by runner, or by the git CLI when nil.
func NewMirror(runner CommandRunner) *Mirror {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Mirror{runner: runner}
}

// authArgs returns "-c http.extraHeader=..." so the token never lands in a
// remote URL or the mirror's config.
func authArgs(auth Auth) []string {
	if auth.Token == "" {
		return nil
	}
	user := auth.Username
	if user == "" {
		user = "git"
	}
	cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + auth.Token))
	return []string{"-c", extraHeaderKey + "=Authorization: Basic " + cred}
}

// Clone creates a bare mirror of url at dest, or refreshes dest when it
// already holds a mirror.
func (m *Mirror) Clone(ctx context.Context, url string, auth Auth, dest string) error {
	if isBareRepo(dest) {
		args := append(authArgs(auth), "remote", "update", "--prune")
		if _, err := m.runner.Run(ctx, dest, "git", args...); err != nil {
			return fmt.Errorf("update mirror %s: %w", dest, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create mirror parent: %w", err)
	}
	args := append(authArgs(auth), "clone", "--mirror", url, dest)
	if _, err := m.runner.Run(ctx, "", "git", args...); err != nil {
		return fmt.Errorf("clone mirror of %s: %w", url, err)
	}
	return nil
}

// Push pushes every ref of the mirror at dir to url.
func (m *Mirror) Push(ctx context.Context, dir, url string, auth Auth) error {
	if err := RequireMirror(dir); err != nil {
		return fmt.Errorf("push mirror: %w", err)
	}
	args := append(authArgs(auth), "push", "--mirror", url)
	if _, err := m.runner.Run(ctx, dir, "git", args...); err != nil {
		return fmt.Errorf("push mirror to %s: %w", url, err)
	}
	return nil
}

// Tags lists the tag names of the repository at dir, sorted.
func (m *Mirror) Tags(ctx context.Context, dir string) ([]string, error) {
	out, err := m.runner.Run(ctx, dir, "git", "for-each-ref", "--sort=refname", "--format=%(refname:short)", "refs/tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return splitLines(out), nil
}

// Branches lists the branch names of the repository at dir, sorted.
func (m *Mirror) Branches(ctx context.Context, dir string) ([]string, error) {
	out, err := m.runner.Run(ctx, dir, "git", "for-each-ref", "--sort=refname", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return splitLines(out), nil
}

// ErrNotMirror is returned when a directory expected to hold a mirror does not.
var ErrNotMirror = errors.New("not a bare repository")

// isBareRepo reports whether dir looks like a bare git repository.
func isBareRepo(dir string) bool {
	if dir == "" {
		return false
	}
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// RequireMirror fails with ErrNotMirror when dir is not a bare repository.
func RequireMirror(dir string) error {
	if !isBareRepo(dir) {
		return fmt.Errorf("%s: %w", dir, ErrNotMirror)
	}
	return nil
}

func splitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
