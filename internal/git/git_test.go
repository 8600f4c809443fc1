package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/schaermu/git2jss/internal/testutil"
)

const testDate = "Sat, 17 Mar 2018 09:14:38 +0000"

// newUpstream creates a repository with one commit on main tagged v1.0.
func newUpstream(t *testing.T) *testutil.GitRepo {
	t.Helper()
	testutil.IsolateGit(t)
	up := testutil.InitRepo(t, filepath.Join(t.TempDir(), "upstream.git"), "main")
	up.CommitFile("hello.sh", "echo hello\n", "Initial commit", testDate)
	up.Tag("v1.0")
	return up
}

// newLocal creates a repository whose only remote "origin" points at url.
func newLocal(t *testing.T, url string) *testutil.GitRepo {
	t.Helper()
	local := testutil.InitRepo(t, t.TempDir(), "main")
	local.Git("remote", "add", "origin", url)
	return local
}

func TestRemotes(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t)
	client := NewShellClient("", "")

	t.Run("none configured", func(t *testing.T) {
		got, err := client.Remotes(ctx, up.Dir)
		if err != nil {
			t.Fatalf("Remotes: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no remotes, got %v", got)
		}
	})

	t.Run("two configured", func(t *testing.T) {
		local := newLocal(t, up.Dir)
		local.Git("remote", "add", "another", "https://notarepo.example.com")

		got, err := client.Remotes(ctx, local.Dir)
		if err != nil {
			t.Fatalf("Remotes: %v", err)
		}
		sort.Strings(got)
		if diff := cmp.Diff([]string{"another", "origin"}, got); diff != "" {
			t.Errorf("Remotes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := client.Remotes(ctx, t.TempDir())
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError, got %v", err)
		}
		if !strings.Contains(strings.ToLower(cmdErr.Output), "not a git repository") {
			t.Errorf("unexpected output: %q", cmdErr.Output)
		}
	})
}

func TestRemoteURLAndRefs(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t)
	up.Git("branch", "feature/x")
	local := newLocal(t, up.Dir)
	client := NewShellClient("", "")

	url, err := client.RemoteURL(ctx, local.Dir, "origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != up.Dir {
		t.Errorf("RemoteURL = %q, want %q", url, up.Dir)
	}

	refs, err := client.RemoteRefs(ctx, local.Dir, "origin")
	if err != nil {
		t.Fatalf("RemoteRefs: %v", err)
	}
	sort.Strings(refs)
	want := []string{"refs/heads/feature/x", "refs/heads/main", "refs/tags/v1.0"}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("RemoteRefs mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneAndLog(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t)
	up.CommitFile("hello.sh", "echo after tag\n", "Post-tag commit", testDate)
	client := NewShellClient("", "")

	dest := filepath.Join(t.TempDir(), "clone")
	if err := client.Clone(ctx, up.Dir, "v1.0", dest); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "hello.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "echo hello\n" {
		t.Errorf("expected tagged content, got %q", string(got))
	}

	subject, err := client.Log(ctx, dest, "-1", "--format=%s", "--", "hello.sh")
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if subject != "Initial commit" {
		t.Errorf("Log = %q, want %q", subject, "Initial commit")
	}
}

func TestCloneMissingRef(t *testing.T) {
	up := newUpstream(t)
	client := NewShellClient("", "")

	err := client.Clone(context.Background(), up.Dir, "nope", filepath.Join(t.TempDir(), "clone"))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if !strings.Contains(cmdErr.Output, "nope") {
		t.Errorf("expected git output to mention the ref, got %q", cmdErr.Output)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple path", input: "/home/user/.ssh/key", want: "'/home/user/.ssh/key'"},
		{name: "path with spaces", input: "/home/my user/key", want: "'/home/my user/key'"},
		{name: "path with single quote", input: "/home/user's/key", want: "'/home/user'\\''s/key'"},
		{name: "empty string", input: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shellQuote(tt.input)
			if got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInsertGitFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		flags []string
		want  []string
	}{
		{
			name:  "insert before clone",
			args:  []string{"git", "clone", "-q", "--branch", "v1", "url", "dest"},
			flags: []string{"-c", "key=value"},
			want:  []string{"git", "-c", "key=value", "clone", "-q", "--branch", "v1", "url", "dest"},
		},
		{
			name:  "insert before ls-remote",
			args:  []string{"git", "ls-remote", "--refs", "origin"},
			flags: []string{"-c", "cred=helper"},
			want:  []string{"git", "-c", "cred=helper", "ls-remote", "--refs", "origin"},
		},
		{
			name:  "empty args",
			args:  []string{},
			flags: []string{"-c", "key=value"},
			want:  []string{"-c", "key=value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertGitFlags(tt.args, tt.flags...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("insertGitFlags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigureAuthHTTPSToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	client := NewShellClient("", tokenFile)

	out, err := client.output(context.Background(), t.TempDir(), "https://example.com/repo.git", "version")
	if err != nil {
		t.Fatalf("git version with token auth: %v", err)
	}
	if !strings.HasPrefix(out, "git version") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConfigureAuthMissingTokenFile(t *testing.T) {
	client := NewShellClient("", filepath.Join(t.TempDir(), "missing"))
	err := client.Clone(context.Background(), "https://example.com/repo.git", "main", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "token file") {
		t.Fatalf("expected token file error, got %v", err)
	}
}
