package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Committer identity used for every test commit.
const (
	CommitterName  = "Test"
	CommitterEmail = "test@test.com"
)

// GitRepo is a throwaway repository used as a git remote (or a local
// checkout pointing at one) in tests.
type GitRepo struct {
	Dir string
	t   *testing.T
}

// IsolateGit points git at an empty global config so a developer's own
// settings (signing, hooks, default branch) cannot leak into tests.
func IsolateGit(t *testing.T) {
	t.Helper()
	global := filepath.Join(t.TempDir(), "gitconfig")
	if err := os.WriteFile(global, nil, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GIT_CONFIG_GLOBAL", global)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_TERMINAL_PROMPT", "0")
}

// InitRepo runs `git init -b branch` in dir, creating it if needed.
func InitRepo(t *testing.T, dir, branch string) *GitRepo {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	r := &GitRepo{Dir: dir, t: t}
	r.Git("init", "-q", "-b", branch)
	r.Git("config", "user.email", CommitterEmail)
	r.Git("config", "user.name", CommitterName)
	return r
}

// Git runs a git command in the repository and returns its trimmed stdout.
func (r *GitRepo) Git(args ...string) string {
	r.t.Helper()
	return r.GitEnv(nil, args...)
}

// GitEnv is Git with extra environment variables.
func (r *GitRepo) GitEnv(env []string, args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), env...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		r.t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(string(out))
}

// WriteFile creates or overwrites a file relative to the repository root.
func (r *GitRepo) WriteFile(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.t.Fatal(err)
	}
}

// CommitFile writes a file and commits it with author and committer date
// pinned to date (any format git accepts, e.g. RFC 2822).
func (r *GitRepo) CommitFile(name, content, msg, date string) {
	r.t.Helper()
	r.WriteFile(name, content)
	env := []string{
		"GIT_AUTHOR_DATE=" + date,
		"GIT_COMMITTER_DATE=" + date,
	}
	r.GitEnv(env, "add", name)
	r.GitEnv(env, "commit", "-q", "-m", msg)
}

// Tag creates a lightweight tag at HEAD.
func (r *GitRepo) Tag(name string) {
	r.t.Helper()
	r.Git("tag", name)
}

// Head returns the full hash of HEAD.
func (r *GitRepo) Head() string {
	r.t.Helper()
	return r.Git("rev-parse", "HEAD")
}
