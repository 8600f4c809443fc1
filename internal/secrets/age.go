package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// PassphraseEnv overrides the passphrase prompt of an AgeFile
const PassphraseEnv = "GIT2JSS_SECRETS_PASSPHRASE"

// AgeFile is a Store kept in a passphrase-encrypted age file, for hosts
// without a usable keychain. The plaintext is a YAML map of service to user
// to password.
type AgeFile struct {
	Path string
	// Passphrase is asked for when PassphraseEnv is unset.
	Passphrase func() (string, error)
	// WorkFactor is the scrypt log2 cost used when writing. Zero keeps the
	// age default.
	WorkFactor int
}

type ageSecrets map[string]map[string]string

// Get decrypts the file and returns the stored password
func (a *AgeFile) Get(service, user string) (string, error) {
	passphrase, err := a.passphrase()
	if err != nil {
		return "", err
	}
	data, err := a.load(passphrase)
	if err != nil {
		return "", err
	}

	password, ok := data[service][user]
	if !ok {
		return "", fmt.Errorf("%w in %s for %s on %s", ErrNotFound, a.Path, user, service)
	}
	return password, nil
}

// Set stores the password, creating the file if needed
func (a *AgeFile) Set(service, user, password string) error {
	passphrase, err := a.passphrase()
	if err != nil {
		return err
	}
	data, err := a.load(passphrase)
	if err != nil {
		return err
	}

	if data[service] == nil {
		data[service] = make(map[string]string)
	}
	data[service][user] = password
	return a.save(passphrase, data)
}

func (a *AgeFile) passphrase() (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}
	if a.Passphrase == nil {
		return "", fmt.Errorf("no passphrase for %s: set %s", a.Path, PassphraseEnv)
	}
	return a.Passphrase()
}

// load returns an empty map when the file does not exist yet
func (a *AgeFile) load(passphrase string) (ageSecrets, error) {
	ciphertext, err := os.ReadFile(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(ageSecrets), nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", a.Path, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted secrets: %w", err)
	}

	data := make(ageSecrets)
	if err := yaml.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("parsing secrets: %w", err)
	}
	return data, nil
}

func (a *AgeFile) save(passphrase string, data ageSecrets) error {
	plaintext, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if a.WorkFactor > 0 {
		recipient.SetWorkFactor(a.WorkFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("encrypting secrets: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}
	if err := os.WriteFile(a.Path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	return nil
}
