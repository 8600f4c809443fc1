package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/schaermu/git2jss/internal/git"
)

// RefKind says whether a Ref names a tag or a branch
type RefKind int

const (
	RefTag RefKind = iota
	RefBranch
)

func (k RefKind) String() string {
	if k == RefBranch {
		return "branch"
	}
	return "tag"
}

// Ref is a tag or branch on the git remote
type Ref struct {
	Name string
	Kind RefKind
}

// Tag returns a Ref naming a tag
func Tag(name string) Ref { return Ref{Name: name, Kind: RefTag} }

// Branch returns a Ref naming a branch
func Branch(name string) Ref { return Ref{Name: name, Kind: RefBranch} }

func (r Ref) String() string {
	return r.Kind.String() + " " + r.Name
}

// FileInfo is the provenance of one file at the snapshot's ref
type FileInfo struct {
	Version string
	Origin  string
	Path    string
	Date    string
	Log     string
}

// Mapping returns the template keys for the file
func (fi FileInfo) Mapping() map[string]string {
	return map[string]string{
		"VERSION": fi.Version,
		"ORIGIN":  fi.Origin,
		"PATH":    fi.Path,
		"DATE":    fi.Date,
		"LOG":     fi.Log,
	}
}

// Snapshot is a one-time clone of a single ref of the remote configured for
// a local repository. The clone lives in a temporary workspace which is
// removed by Close.
type Snapshot struct {
	git        git.Client
	logger     *slog.Logger
	ref        Ref
	cloneRef   string // ref name as advertised by the remote
	remoteName string
	remoteURL  string
	cloneURL   string
	workspace  string
}

// Open resolves the single remote of sourceDir, verifies ref exists there
// and clones it into a fresh temporary directory. The caller must Close the
// returned Snapshot.
func Open(ctx context.Context, client git.Client, ref Ref, sourceDir string, logger *slog.Logger) (*Snapshot, error) {
	s := &Snapshot{
		git:    client,
		logger: logger,
		ref:    ref,
	}

	remote, err := s.findRemote(ctx, sourceDir)
	if err != nil {
		return nil, err
	}
	s.remoteName = remote

	url, err := client.RemoteURL(ctx, sourceDir, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to read URL of remote %s: %w", remote, err)
	}
	s.cloneURL = url
	s.remoteURL = strings.TrimSuffix(url, ".git")
	logger.Info("found git remote", "name", remote, "url", s.remoteURL)

	cloneRef, err := s.resolveRef(ctx, sourceDir)
	if err != nil {
		return nil, err
	}
	s.cloneRef = cloneRef

	if err := s.clone(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) findRemote(ctx context.Context, sourceDir string) (string, error) {
	remotes, err := s.git.Remotes(ctx, sourceDir)
	if err != nil {
		var cmdErr *git.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(strings.ToLower(cmdErr.Output), "not a git repository") {
			return "", fmt.Errorf("%w: %s", ErrNotAGitRepo, sourceDir)
		}
		return "", fmt.Errorf("failed to list git remotes in %s: %w", sourceDir, err)
	}

	switch len(remotes) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrNoRemote, sourceDir)
	case 1:
		return remotes[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrTooManyRemotes, strings.Join(remotes, ", "))
	}
}

// resolveRef finds the snapshot's ref among the branches and tags the
// remote advertises and returns its name below refs/heads/ or refs/tags/.
// An exact name wins. Otherwise the ref may be named by its last path
// segment, which must then match exactly one remote ref.
func (s *Snapshot) resolveRef(ctx context.Context, sourceDir string) (string, error) {
	refs, err := s.git.RemoteRefs(ctx, sourceDir, s.remoteName)
	if err != nil {
		return "", fmt.Errorf("failed to list refs on git remote %s: %w", s.remoteURL, err)
	}

	var matches []string
	for _, full := range refs {
		name, ok := strings.CutPrefix(full, "refs/heads/")
		if !ok {
			if name, ok = strings.CutPrefix(full, "refs/tags/"); !ok {
				continue
			}
		}
		if name == s.ref.Name {
			return name, nil
		}
		if name[strings.LastIndex(name, "/")+1:] == s.ref.Name && !slices.Contains(matches, name) {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s doesn't exist on git remote %s", ErrRefNotFound, s.ref, s.remoteURL)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s on git remote %s", ErrAmbiguousRef, s.ref, strings.Join(matches, ", "), s.remoteURL)
	}
}

func (s *Snapshot) clone(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "git2jss-")
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	s.logger.Info("cloning", "remote", s.remoteURL, "ref", s.cloneRef, "workspace", dir)
	if err := s.git.Clone(ctx, s.cloneURL, s.cloneRef, dir); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("%w: %s at %s: %w", ErrCloneFailed, s.remoteURL, s.ref, err)
	}

	s.workspace = dir
	s.logger.Debug("checked out repo", "ref", s.cloneRef)
	return nil
}

// Close removes the workspace. It is safe to call more than once.
func (s *Snapshot) Close() error {
	if s.workspace == "" {
		return nil
	}
	dir := s.workspace
	s.workspace = ""

	s.logger.Debug("cleaning up workspace", "path", dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", dir, err)
	}
	return nil
}

// Ref returns the tag or branch the snapshot was cloned from
func (s *Snapshot) Ref() Ref { return s.ref }

// RemoteName returns the name of the remote used
func (s *Snapshot) RemoteName() string { return s.remoteName }

// RemoteURL returns the remote URL without a trailing .git
func (s *Snapshot) RemoteURL() string { return s.remoteURL }

// Workspace returns the directory holding the checkout, or "" once closed
func (s *Snapshot) Workspace() string { return s.workspace }

// resolve maps a repository-relative path into the workspace. Paths that
// leave the workspace resolve to "".
func (s *Snapshot) resolve(rel string) string {
	if s.workspace == "" {
		return ""
	}
	path := filepath.Join(s.workspace, rel)
	inside, err := filepath.Rel(s.workspace, path)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return ""
	}
	return path
}

// HasFile reports whether rel names a regular file at the snapshot's ref
func (s *Snapshot) HasFile(rel string) bool {
	path := s.resolve(rel)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// PathTo returns the absolute path of rel inside the workspace
func (s *Snapshot) PathTo(rel string) (string, error) {
	if !s.HasFile(rel) {
		return "", fmt.Errorf("%w: couldn't find %s at %s", ErrFileNotFound, rel, s.ref)
	}
	return filepath.Abs(s.resolve(rel))
}

// OpenFile opens rel for reading
func (s *Snapshot) OpenFile(rel string) (io.ReadCloser, error) {
	path, err := s.PathTo(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", rel, err)
	}
	return f, nil
}

// FileInfo collects the version, origin, date and commit log of rel
func (s *Snapshot) FileInfo(ctx context.Context, rel string) (FileInfo, error) {
	if !s.HasFile(rel) {
		return FileInfo{}, fmt.Errorf("%w: couldn't find %s at %s", ErrFileNotFound, rel, s.ref)
	}

	info := FileInfo{
		Version: s.ref.Name,
		Origin:  s.remoteURL,
		Path:    rel,
	}

	if s.ref.Kind == RefBranch {
		commit, err := s.git.Log(ctx, s.workspace, "-1", "--format=%H", "--", rel)
		if err != nil {
			return FileInfo{}, fmt.Errorf("failed to read last commit of %s: %w", rel, err)
		}
		info.Version = fmt.Sprintf("%s on branch: %s", commit, s.ref.Name)
	}

	// The quotes are part of the format and end up in the value.
	date, err := s.git.Log(ctx, s.workspace, "-1", `--format="%ad"`, "--", rel)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to read date of %s: %w", rel, err)
	}
	info.Date = date

	log, err := s.git.Log(ctx, s.workspace, "--format=%h - %cD %ce: %n %s%n", "--", rel)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to read log of %s: %w", rel, err)
	}
	info.Log = log

	return info, nil
}
