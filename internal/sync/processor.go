package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"

	"github.com/schaermu/git2jss/internal/jss"
	"github.com/schaermu/git2jss/internal/repo"
	"github.com/schaermu/git2jss/internal/template"
)

var (
	// ErrTargetNotFound means the remote object to update does not exist.
	ErrTargetNotFound = errors.New("target object not found on JSS")
	// ErrNotText means the source file is not valid UTF-8.
	ErrNotText = errors.New("not a UTF-8 text file")
)

// Source is a checked out ref that files are read from
type Source interface {
	OpenFile(rel string) (io.ReadCloser, error)
	FileInfo(ctx context.Context, rel string) (repo.FileInfo, error)
}

// OpenOptions selects the file and remote object a Processor works on
type OpenOptions struct {
	Path    string  // file path relative to the repository root
	Name    string  // remote object name, defaults to the base name of Path
	Variant Variant // how fields are written
	User    string  // value of the USER template key
}

// Processor pushes one file into one remote object
type Processor struct {
	src     Source
	store   jss.Store
	variant Variant
	path    string
	user    string
	obj     *jss.Object
	content string
}

// Open loads the remote object and reads the source file. The remote object
// is loaded first, so a missing target is reported before a missing file.
func Open(ctx context.Context, src Source, store jss.Store, opts OpenOptions) (*Processor, error) {
	name := opts.Name
	if name == "" {
		name = filepath.Base(opts.Path)
	}
	kind := opts.Variant.Kind()

	obj, err := store.Load(ctx, kind, name)
	if err != nil {
		if errors.Is(err, jss.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %q doesn't exist", ErrTargetNotFound, kind, name)
		}
		return nil, fmt.Errorf("failed to load %s %q: %w", kind, name, err)
	}

	content, err := readSource(src, opts.Path)
	if err != nil {
		return nil, err
	}

	return &Processor{
		src:     src,
		store:   store,
		variant: opts.Variant,
		path:    opts.Path,
		user:    opts.User,
		obj:     obj,
		content: content,
	}, nil
}

func readSource(src Source, path string) (string, error) {
	rc, err := src.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, path)
	}
	return string(data), nil
}

// Object returns the remote object being updated
func (p *Processor) Object() *jss.Object { return p.obj }

// Update writes the file's log and (optionally templated) content into the
// remote object. It always starts from the file as read by Open, so
// repeated calls produce the same document.
func (p *Processor) Update(ctx context.Context, shouldTemplate bool) error {
	info, err := p.src.FileInfo(ctx, p.path)
	if err != nil {
		return err
	}

	payload := p.content
	if shouldTemplate {
		payload = template.Render(payload, info.Mapping(), map[string]string{"USER": p.user})
	}

	return p.variant.Apply(p.obj, info.Log, payload)
}

// Save writes the object back to the server
func (p *Processor) Save(ctx context.Context) error {
	return p.store.Save(ctx, p.obj)
}

// Payload returns the document Save would send
func (p *Processor) Payload() ([]byte, error) {
	return p.obj.Doc.WriteToBytes()
}
