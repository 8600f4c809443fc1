package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Client provides the git operations needed to snapshot a remote ref
type Client interface {
	// Remotes lists the remote names configured for the repository in dir
	Remotes(ctx context.Context, dir string) ([]string, error)
	// RemoteURL returns the configured URL of the named remote
	RemoteURL(ctx context.Context, dir, remote string) (string, error)
	// RemoteRefs lists the full ref names (refs/heads/..., refs/tags/...) advertised by remote
	RemoteRefs(ctx context.Context, dir, remote string) ([]string, error)
	// Clone clones a single ref of url into destDir
	Clone(ctx context.Context, url, ref, destDir string) error
	// Log runs git log with the given arguments in dir and returns its trimmed output
	Log(ctx context.Context, dir string, args ...string) (string, error)
}

// CommandError is returned when a git invocation exits non-zero
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(sshKeyFile, httpsTokenFile string) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
	}
}

// Remotes runs `git remote` in dir
func (c *ShellClient) Remotes(ctx context.Context, dir string) ([]string, error) {
	out, err := c.output(ctx, dir, "", "remote")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// RemoteURL reads remote.<name>.url from the repository config
func (c *ShellClient) RemoteURL(ctx context.Context, dir, remote string) (string, error) {
	out, err := c.output(ctx, dir, "", "config", "--get", "remote."+remote+".url")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RemoteRefs runs `git ls-remote --refs` against remote and returns the ref names
func (c *ShellClient) RemoteRefs(ctx context.Context, dir, remote string) ([]string, error) {
	url, err := c.RemoteURL(ctx, dir, remote)
	if err != nil {
		return nil, err
	}

	out, err := c.output(ctx, dir, url, "ls-remote", "--refs", remote)
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, line := range splitLines(out) {
		// <hash>\t<ref>
		fields := strings.Split(line, "\t")
		refs = append(refs, fields[len(fields)-1])
	}
	return refs, nil
}

// Clone performs a quiet single-ref clone into destDir
func (c *ShellClient) Clone(ctx context.Context, url, ref, destDir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "-q", "--branch", ref, url, destDir)
	if err := c.configureAuth(cmd, url); err != nil {
		return err
	}
	return c.runCommand(cmd)
}

// Log runs `git log <args>` in dir
func (c *ShellClient) Log(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.output(ctx, dir, "", append([]string{"log"}, args...)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// output runs git in dir and returns stdout. Auth is configured when url is set.
func (c *ShellClient) output(ctx context.Context, dir, url string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if url != "" {
		if err := c.configureAuth(cmd, url); err != nil {
			return "", err
		}
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{Args: args, Output: stderr.String(), Err: err}
	}
	return string(out), nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted since git hands GIT_SSH_COMMAND to a shell.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		tokenStr := strings.TrimSpace(string(token))

		// The token reaches git through the environment and a credential
		// helper, never through the command line.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "GIT2JSS_GIT_TOKEN="+tokenStr)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$GIT2JSS_GIT_TOKEN"; }; f`,
		)

		return nil
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "ls-remote").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with its output on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{Args: cmd.Args[1:], Output: string(output), Err: err}
	}
	return nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
