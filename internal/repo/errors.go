package repo

import "errors"

var (
	// ErrNotAGitRepo means the source directory is not under version control.
	ErrNotAGitRepo = errors.New("not a git repository")
	// ErrNoRemote means the source directory has no git remote configured.
	ErrNoRemote = errors.New("no git remote is configured")
	// ErrTooManyRemotes means the source directory has more than one remote.
	ErrTooManyRemotes = errors.New("don't know how to handle more than 1 remote")
	// ErrRefNotFound means the tag or branch is not advertised by the remote.
	ErrRefNotFound = errors.New("ref not found on git remote")
	// ErrAmbiguousRef means a short ref name matches several remote refs.
	ErrAmbiguousRef = errors.New("ref is ambiguous on git remote")
	// ErrCloneFailed wraps any failure of the clone itself.
	ErrCloneFailed = errors.New("clone failed")
	// ErrFileNotFound means the file does not exist at the checked out ref.
	ErrFileNotFound = errors.New("file not found")
)
