package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schaermu/git2jss/internal/config"
	"github.com/schaermu/git2jss/internal/git"
	"github.com/schaermu/git2jss/internal/jss"
	"github.com/schaermu/git2jss/internal/repo"
	"github.com/schaermu/git2jss/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// options holds the values of all command line flags
type options struct {
	tag        string
	branch     string
	file       string
	all        bool
	name       string
	mode       string
	localRepo  string
	noKeychain bool
	prefsFile  string
	jssInfo    bool
	noTemplate bool
	dryRun     bool
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "git2jss",
		Short: "Push versioned scripts from a Git repository to a Jamf Pro server",
		Long: `git2jss clones a tag or branch of the remote configured for a local Git
repository and pushes one script (--file) or every .sh, .py and .pl file at
the top level of the repository (--all) into existing Script or Computer
Extension Attribute objects on a JSS.

Before pushing, @@VERSION, @@ORIGIN, @@PATH, @@DATE, @@LOG and @@USER in the
script are replaced with the provenance of the file, and the commit log is
written to the object's notes or description.`,
		Example: `  git2jss --tag v1.2.0 --file install.sh
  git2jss --branch main --all --mode ComputerExtensionAttribute
  git2jss --jss-info`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, opts)
		},
	}
	rootCmd.SetVersionTemplate("git2jss {{.Version}}\n")

	flags := rootCmd.Flags()
	flags.StringVar(&opts.tag, "tag", "", "tag to push scripts from")
	flags.StringVar(&opts.branch, "branch", "", "branch to push scripts from")
	flags.StringVar(&opts.file, "file", "", "script to push, relative to the repository root")
	flags.BoolVar(&opts.all, "all", false, "push every script at the top level of the repository")
	flags.StringVar(&opts.name, "name", "", "name of the object on the JSS (default is the file's base name)")
	flags.StringVar(&opts.mode, "mode", string(jss.Script), "kind of object to update (Script, ComputerExtensionAttribute)")
	flags.StringVar(&opts.localRepo, "local-repo", ".", "local clone whose remote is pushed from")
	flags.BoolVarP(&opts.jssInfo, "jss-info", "i", false, "print the configured JSS and exit")
	flags.BoolVar(&opts.noTemplate, "no-template", false, "push scripts without replacing @@ placeholders")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "show what would be pushed without changing the JSS")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&opts.prefsFile, "prefs-file", "", "preferences file (default is $GIT2JSS_PREFS or git2jss/prefs.yaml in the user config dir)")
	persistent.BoolVar(&opts.noKeychain, "no-keychain", false, "read the password from the preferences file instead of the secret store")
	persistent.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	persistent.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.MarkFlagsMutuallyExclusive("tag", "branch")
	rootCmd.MarkFlagsMutuallyExclusive("file", "all")
	rootCmd.MarkFlagsMutuallyExclusive("name", "all")

	rootCmd.AddCommand(newConfigureCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newConfigureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactively write the preferences file",
		Long: `Configure asks for the JSS URL, API user, password and whether to verify TLS
certificates, and writes the preferences file. The password is stored in the
secret store unless --no-keychain is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := prefsPath(opts)
			if err != nil {
				return err
			}
			prompter := config.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			_, err = config.Configure(path, prompter, cmd.ErrOrStderr(), opts.noKeychain, passphrasePrompt(prompter))
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "git2jss %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// validateOptions checks the flag combinations cobra cannot express
func validateOptions(opts *options) error {
	if opts.tag == "" && opts.branch == "" {
		return errors.New("you need to specify a tag (--tag TAG) or a branch (--branch BRANCH)")
	}
	if opts.file == "" && !opts.all {
		return errors.New("you need to specify either a filename (--file FILE) or all files (--all)")
	}
	if _, err := sync.VariantFor(opts.mode); err != nil {
		return err
	}
	return nil
}

func runPush(cmd *cobra.Command, opts *options) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	if !opts.jssInfo {
		if err := validateOptions(opts); err != nil {
			return err
		}
	}

	logger := setupLogger(cmd.ErrOrStderr(), opts)

	prefs, err := loadPrefs(opts, logger)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	prompter := config.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	store := prefs.Secrets(passphrasePrompt(prompter))
	creds, err := config.Resolve(prefs, store, prompter, cmd.ErrOrStderr(), opts.noKeychain)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	if opts.jssInfo {
		printJSSInfo(cmd.OutOrStdout(), creds, prefs.Path())
		return nil
	}

	ref := repo.Tag(opts.tag)
	if opts.branch != "" {
		ref = repo.Branch(opts.branch)
	}

	jssClient := jss.NewClient(creds.URL, creds.User, creds.Password, creds.Verify, logger)
	gitClient := git.NewShellClient(prefs.Git.SSHKeyFile, prefs.Git.HTTPSTokenFile)

	engine := sync.NewEngine(sync.Options{
		Ref:       ref,
		SourceDir: opts.localRepo,
		File:      opts.file,
		All:       opts.all,
		Name:      opts.name,
		Mode:      opts.mode,
		Template:  !opts.noTemplate,
		DryRun:    opts.dryRun,
		User:      jssClient.User(),
	}, gitClient, jssClient, logger)

	logger.Info("running", "mode", opts.mode, "jss", jssClient.URL())
	report, err := engine.Run(ctx)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

func printJSSInfo(out io.Writer, creds *config.Credentials, path string) {
	_, _ = fmt.Fprintf(out, "JSS: %s\nUsername: %s\nFile: %s\n", creds.URL, creds.User, path)
}

func printReport(out io.Writer, report *sync.Report) {
	verb := "pushed"
	if report.DryRun {
		verb = "would push"
	}
	for _, f := range report.Pushed {
		_, _ = fmt.Fprintf(out, "%s %s\n", verb, f)
	}
	for _, f := range report.Skipped {
		_, _ = fmt.Fprintf(out, "skipped %s\n", f)
	}
}

// passphrasePrompt asks for the age secrets file passphrase
func passphrasePrompt(prompter config.Prompter) func() (string, error) {
	return func() (string, error) {
		return prompter.Password("Passphrase for the secrets file")
	}
}

func setupLogger(w io.Writer, opts *options) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch opts.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.logFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler).With("run", uuid.NewString())
}

func prefsPath(opts *options) (string, error) {
	if opts.prefsFile != "" {
		return opts.prefsFile, nil
	}
	return config.DefaultPath()
}

func loadPrefs(opts *options, logger *slog.Logger) (*config.Prefs, error) {
	path, err := prefsPath(opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("loading preferences", "path", path)

	prefs, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("preferences loaded",
		"jss", prefs.JSSURL,
		"user", prefs.JSSUser,
		"secret_store", prefs.SecretStore,
		"verify", prefs.VerifyTLS())

	return prefs, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
