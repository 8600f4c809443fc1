//go:build integration

package tier1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/git2jss/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the git2jss binary once and runs it as a user would, with
// its own temp dir and preferences file.
type Harness struct {
	t       *testing.T
	bin     string
	tmpDir  string
	prefs   string
	keepTmp bool
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	h := &Harness{
		t:       t,
		keepTmp: os.Getenv("INTEGRATION_KEEP_TMP") == "1",
	}
	if h.keepTmp {
		dir, err := os.MkdirTemp("", "git2jss-integration-")
		if err != nil {
			t.Fatal(err)
		}
		h.tmpDir = dir
	} else {
		h.tmpDir = t.TempDir()
	}
	return h
}

// BuildBinary compiles cmd/git2jss into a temporary directory
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.bin = filepath.Join(h.t.TempDir(), "git2jss")
	h.t.Logf("Building %s", h.bin)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.bin, "./cmd/git2jss")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// WritePrefs writes a preferences file pointing at url with a plaintext
// password, for use with --no-keychain.
func (h *Harness) WritePrefs(url, user, password string) {
	h.t.Helper()
	h.prefs = filepath.Join(h.t.TempDir(), "prefs.yaml")
	content := fmt.Sprintf("jss_url: %q\njss_user: %q\njss_pass: %q\n", url, user, password)
	if err := os.WriteFile(h.prefs, []byte(content), 0600); err != nil {
		h.t.Fatalf("write prefs: %v", err)
	}
}

// Run executes the binary with the harness preferences and returns its
// output and exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.bin == "" {
		return "", "", 0, errors.New("binary not built")
	}

	full := append([]string{"--no-keychain", "--prefs-file", h.prefs}, args...)
	cmd := exec.CommandContext(ctx, h.bin, full...)
	cmd.Env = append(os.Environ(), "TMPDIR="+h.tmpDir)
	cmd.Stdin = strings.NewReader("")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun runs the binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout, stderr
}

// Workspaces lists clone directories the binary left behind
func (h *Harness) Workspaces() []string {
	h.t.Helper()
	left, err := filepath.Glob(filepath.Join(h.tmpDir, "git2jss-*"))
	if err != nil {
		h.t.Fatal(err)
	}
	return left
}

// Cleanup removes the temp dir unless it is kept for inspection
func (h *Harness) Cleanup() {
	if !h.keepTmp {
		return
	}
	if h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_TMP=1, keeping %s", h.tmpDir)
		return
	}
	_ = os.RemoveAll(h.tmpDir)
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
