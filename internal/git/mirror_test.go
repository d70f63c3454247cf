package git

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type call struct {
	workDir string
	args    []string
}

type fakeRunner struct {
	calls []call
	out   string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, workDir, _ string, args ...string) (string, error) {
	f.calls = append(f.calls, call{workDir: workDir, args: args})
	return f.out, f.err
}

func TestAuthArgs(t *testing.T) {
	t.Parallel()

	if got := authArgs(Auth{}); got != nil {
		t.Errorf("authArgs(empty) = %v, want nil", got)
	}

	got := authArgs(Auth{Username: "x-access-token", Token: "s3cret"})
	if len(got) != 2 || got[0] != "-c" {
		t.Fatalf("authArgs() = %v", got)
	}
	want := base64.StdEncoding.EncodeToString([]byte("x-access-token:s3cret"))
	if !strings.HasSuffix(got[1], "Basic "+want) {
		t.Errorf("authArgs()[1] = %q", got[1])
	}
}

func TestRedactArgs(t *testing.T) {
	t.Parallel()

	args := append(authArgs(Auth{Token: "s3cret"}), "clone", "--mirror")
	for _, a := range redactArgs(args) {
		if strings.Contains(a, base64.StdEncoding.EncodeToString([]byte("git:s3cret"))) {
			t.Fatalf("credential leaked into %q", a)
		}
	}
}

func TestMirrorClone_NewUsesMirrorFlag(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	dest := filepath.Join(t.TempDir(), "repo.git")
	if err := NewMirror(r).Clone(context.Background(), "https://example.com/o/r.git", Auth{}, dest); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(r.calls))
	}
	if got := strings.Join(r.calls[0].args, " "); got != "clone --mirror https://example.com/o/r.git "+dest {
		t.Errorf("args = %q", got)
	}
}

func TestMirrorClone_ExistingUpdates(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	for _, name := range []string{"objects", "refs"} {
		if err := os.Mkdir(filepath.Join(dest, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dest, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{}
	if err := NewMirror(r).Clone(context.Background(), "unused", Auth{}, dest); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if len(r.calls) != 1 || r.calls[0].workDir != dest || r.calls[0].args[0] != "remote" {
		t.Errorf("calls = %+v", r.calls)
	}
}

func TestMirrorPush_RequiresMirror(t *testing.T) {
	t.Parallel()

	err := NewMirror(&fakeRunner{}).Push(context.Background(), t.TempDir(), "x", Auth{})
	if !errors.Is(err, ErrNotMirror) {
		t.Fatalf("Push() error = %v, want ErrNotMirror", err)
	}
}

func TestMirrorTags_ParsesOutput(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{out: "v1.0.0\nv1.1.0\n"}
	tags, err := NewMirror(r).Tags(context.Background(), "dir")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if len(tags) != 2 || tags[0] != "v1.0.0" || tags[1] != "v1.1.0" {
		t.Errorf("Tags() = %v", tags)
	}

	empty, err := NewMirror(&fakeRunner{}).Tags(context.Background(), "dir")
	if err != nil || empty != nil {
		t.Errorf("Tags(empty) = %v, %v", empty, err)
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.com")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestMirror_RoundTripWithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.Mkdir(src, 0o755); err != nil {
		t.Fatal(err)
	}
	runGit(t, src, "init", "-q")
	if err := os.WriteFile(filepath.Join(src, "README.md"), []byte("# Test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, src, "add", ".")
	runGit(t, src, "commit", "-q", "-m", "Initial commit")
	runGit(t, src, "tag", "v1.0.0")

	ctx := context.Background()
	m := NewMirror(nil)
	mirrorDir := filepath.Join(root, "backup", "repo.git")
	if err := m.Clone(ctx, src, Auth{}, mirrorDir); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	target := filepath.Join(root, "target.git")
	runGit(t, root, "init", "-q", "--bare", target)
	if err := m.Push(ctx, mirrorDir, target, Auth{}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	tags, err := m.Tags(ctx, target)
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if len(tags) != 1 || tags[0] != "v1.0.0" {
		t.Errorf("target tags = %v", tags)
	}

	// A second clone refreshes in place.
	if err := m.Clone(ctx, src, Auth{}, mirrorDir); err != nil {
		t.Fatalf("refresh Clone() error = %v", err)
	}
}
