package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/git2jss/internal/git"
	"github.com/schaermu/git2jss/internal/jss"
	"github.com/schaermu/git2jss/internal/repo"
	"github.com/schaermu/git2jss/internal/scripts"
)

// Options describes one run
type Options struct {
	Ref       repo.Ref
	SourceDir string // local repository whose remote is cloned
	File      string // single file mode
	All       bool   // push every script at the top level of the checkout
	Name      string // remote object name override, single file mode only
	Mode      string
	Template  bool
	DryRun    bool
	User      string
}

// Engine orchestrates the sync process
type Engine struct {
	opts   Options
	git    git.Client
	store  jss.Store
	logger *slog.Logger
}

// NewEngine creates a new sync engine
func NewEngine(opts Options, gitClient git.Client, store jss.Store, logger *slog.Logger) *Engine {
	return &Engine{
		opts:   opts,
		git:    gitClient,
		store:  store,
		logger: logger,
	}
}

// Run clones the ref once and pushes the selected files. In single file
// mode any error aborts. With All set, files whose remote object or checkout
// file is missing are skipped and reported. The workspace is always removed.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.opts.All && e.opts.Name != "" {
		return nil, errors.New("a target name cannot be used when pushing all files")
	}
	if !e.opts.All && e.opts.File == "" {
		return nil, errors.New("no file selected")
	}

	variant, err := VariantFor(e.opts.Mode)
	if err != nil {
		return nil, err
	}

	e.logger.Info("starting sync",
		"ref", e.opts.Ref.String(),
		"source", e.opts.SourceDir,
		"mode", variant.Kind(),
		"dry_run", e.opts.DryRun)

	snap, err := repo.Open(ctx, e.git, e.opts.Ref, e.opts.SourceDir, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := snap.Close(); err != nil {
			e.logger.Warn("failed to clean up workspace", "error", err)
		}
	}()

	plan, err := e.buildPlan(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync plan: %w", err)
	}
	e.logger.Info("sync plan", "files", len(plan.Ops))

	report := &Report{DryRun: e.opts.DryRun}
	for _, op := range plan.Ops {
		err := e.push(ctx, snap, variant, op)
		if err == nil {
			report.Pushed = append(report.Pushed, op.Path)
			continue
		}
		if e.opts.All && (errors.Is(err, ErrTargetNotFound) || errors.Is(err, repo.ErrFileNotFound)) {
			e.logger.Warn("skipping file", "file", op.Path, "error", err)
			report.Skipped = append(report.Skipped, op.Path)
			continue
		}
		return report, err
	}

	if e.opts.DryRun {
		e.logger.Info("dry-run complete, no changes applied", "files", len(report.Pushed))
	} else {
		e.logger.Info("sync completed successfully", "pushed", len(report.Pushed), "skipped", len(report.Skipped))
	}
	return report, nil
}

// buildPlan lists the files to push
func (e *Engine) buildPlan(snap *repo.Snapshot) (*Plan, error) {
	if !e.opts.All {
		return &Plan{Ops: []PushOp{{Path: e.opts.File, Name: e.opts.Name}}}, nil
	}

	files, err := scripts.DiscoverFiles(snap.Workspace())
	if err != nil {
		return nil, fmt.Errorf("failed to discover script files: %w", err)
	}
	e.logger.Info("discovered script files", "count", len(files))

	plan := &Plan{Ops: make([]PushOp, 0, len(files))}
	for _, f := range files {
		plan.Ops = append(plan.Ops, PushOp{Path: f})
	}
	return plan, nil
}

// push runs open, update and save for one file
func (e *Engine) push(ctx context.Context, src Source, variant Variant, op PushOp) error {
	proc, err := Open(ctx, src, e.store, OpenOptions{
		Path:    op.Path,
		Name:    op.Name,
		Variant: variant,
		User:    e.opts.User,
	})
	if err != nil {
		return err
	}

	if err := proc.Update(ctx, e.opts.Template); err != nil {
		return fmt.Errorf("failed to update %s: %w", op.Path, err)
	}

	obj := proc.Object()
	if e.opts.DryRun {
		payload, err := proc.Payload()
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", op.Path, err)
		}
		e.logger.Info("[dry-run] would push",
			"file", op.Path,
			"kind", obj.Kind,
			"name", obj.Name,
			"bytes", len(payload),
			"sha256", payloadHash(payload))
		return nil
	}

	e.logger.Info("pushing file", "file", op.Path, "kind", obj.Kind, "name", obj.Name)
	if err := proc.Save(ctx); err != nil {
		return fmt.Errorf("failed to save %s %q: %w", obj.Kind, obj.Name, err)
	}
	return nil
}

// payloadHash computes the SHA256 hash of an outgoing document
func payloadHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
