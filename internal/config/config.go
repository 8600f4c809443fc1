package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/git2jss/internal/secrets"
)

// PrefsEnv overrides the default preferences location
const PrefsEnv = "GIT2JSS_PREFS"

// ErrPrefsNotFound means the preferences file does not exist.
var ErrPrefsNotFound = errors.New("preferences file not found")

// SecretStore selects where the API password is kept
type SecretStore string

const (
	SecretKeychain SecretStore = "keychain"
	SecretAge      SecretStore = "age"
)

// Prefs is the persisted git2jss configuration
type Prefs struct {
	JSSURL      string      `yaml:"jss_url" toml:"jss_url"`
	JSSUser     string      `yaml:"jss_user" toml:"jss_user"`
	JSSPass     string      `yaml:"jss_pass,omitempty" toml:"jss_pass,omitempty"`
	Verify      *bool       `yaml:"verify,omitempty" toml:"verify,omitempty"`
	SecretStore SecretStore `yaml:"secret_store,omitempty" toml:"secret_store,omitempty"`
	SecretsFile string      `yaml:"secrets_file,omitempty" toml:"secrets_file,omitempty"`
	Git         GitConfig   `yaml:"git,omitempty" toml:"git,omitempty"`

	path string
}

// GitConfig configures Git authentication for clone and ls-remote
type GitConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file,omitempty" toml:"ssh_key_file,omitempty"`
	HTTPSTokenFile string `yaml:"https_token_file,omitempty" toml:"https_token_file,omitempty"`
}

// DefaultPath returns $GIT2JSS_PREFS, or prefs.yaml in the user config directory
func DefaultPath() (string, error) {
	if p := os.Getenv(PrefsEnv); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "git2jss", "prefs.yaml"), nil
}

// Load reads and parses the preferences file. Files ending in .toml are
// parsed as TOML, anything else as YAML.
func Load(path string) (*Prefs, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run 'git2jss configure' to create it)", ErrPrefsNotFound, path)
		}
		return nil, fmt.Errorf("failed to read preferences file: %w", err)
	}

	var p Prefs
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("preferences file %s invalid: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("preferences file %s invalid: %w", path, err)
		}
	}
	p.path = path

	p.expandEnv()
	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preferences in %s: %w", path, err)
	}
	return &p, nil
}

// Save writes the preferences back to the file they were loaded from
func (p *Prefs) Save() error {
	if p.path == "" {
		return errors.New("preferences have no file path")
	}

	var buf bytes.Buffer
	if isTOML(p.path) {
		if err := toml.NewEncoder(&buf).Encode(p); err != nil {
			return fmt.Errorf("failed to encode preferences: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode preferences: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode preferences: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	if err := os.WriteFile(p.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write preferences file: %w", err)
	}
	return nil
}

// Path returns the file the preferences belong to
func (p *Prefs) Path() string { return p.path }

// SetPath changes the file Save writes to
func (p *Prefs) SetPath(path string) { p.path = path }

// VerifyTLS reports whether server certificates are checked
func (p *Prefs) VerifyTLS() bool {
	return p.Verify == nil || *p.Verify
}

// Secrets returns the password store selected by secret_store. passphrase
// is only used by the age store.
func (p *Prefs) Secrets(passphrase func() (string, error)) secrets.Store {
	if p.SecretStore == SecretAge {
		return &secrets.AgeFile{Path: p.SecretsFile, Passphrase: passphrase}
	}
	return secrets.Keychain{}
}

// expandEnv expands environment variables in all path fields
func (p *Prefs) expandEnv() {
	p.JSSURL = os.ExpandEnv(p.JSSURL)
	p.SecretsFile = os.ExpandEnv(p.SecretsFile)
	p.Git.SSHKeyFile = os.ExpandEnv(p.Git.SSHKeyFile)
	p.Git.HTTPSTokenFile = os.ExpandEnv(p.Git.HTTPSTokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (p *Prefs) applyDefaults() {
	if p.SecretStore == "" {
		p.SecretStore = SecretKeychain
	}
	if p.SecretsFile == "" && p.path != "" {
		p.SecretsFile = filepath.Join(filepath.Dir(p.path), "secrets.age")
	}
}

// Validate checks the preferences for errors
func (p *Prefs) Validate() error {
	if p.JSSURL == "" {
		return fmt.Errorf("jss_url is required")
	}
	u, err := url.Parse(p.JSSURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("jss_url must be an http(s) URL with a host: %s", p.JSSURL)
	}
	if p.JSSUser == "" {
		return fmt.Errorf("jss_user is required")
	}

	switch p.SecretStore {
	case SecretKeychain, SecretAge:
		// valid
	default:
		return fmt.Errorf("invalid secret_store: %s (must be keychain or age)", p.SecretStore)
	}

	if p.Git.SSHKeyFile != "" && p.Git.HTTPSTokenFile != "" {
		return fmt.Errorf("git: only one of ssh_key_file or https_token_file may be set")
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
