package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schaermu/git2jss/internal/secrets"
)

// ErrPlaintextPassword means the preferences hold a plaintext password, the
// keychain is in use and the user declined to move the password.
var ErrPlaintextPassword = errors.New("plaintext password without --no-keychain")

// Credentials are what is needed to talk to the JSS
type Credentials struct {
	URL      string
	User     string
	Password string
	Verify   bool
}

// Resolve returns the JSS credentials. With noKeychain the password comes
// from the preferences file. Otherwise it comes from store, and a plaintext
// password still in the file is offered for migration into store first.
func Resolve(p *Prefs, store secrets.Store, prompter Prompter, out io.Writer, noKeychain bool) (*Credentials, error) {
	creds := &Credentials{
		URL:    p.JSSURL,
		User:   p.JSSUser,
		Verify: p.VerifyTLS(),
	}

	if noKeychain {
		if p.JSSPass == "" {
			return nil, fmt.Errorf("jss_pass is required in %s with --no-keychain", p.Path())
		}
		creds.Password = p.JSSPass
		return creds, nil
	}

	if p.JSSPass != "" {
		if err := migratePassword(p, store, prompter, out); err != nil {
			return nil, err
		}
	}

	password, err := store.Get(p.JSSURL, p.JSSUser)
	if err != nil {
		return nil, err
	}
	creds.Password = password
	return creds, nil
}

func migratePassword(p *Prefs, store secrets.Store, prompter Prompter, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Warning: found a plaintext password in the preferences file, and --no-keychain was not given.")
	_, _ = fmt.Fprintln(out, "git2jss can remove the plaintext password from the file and move it to the secret store.")

	move, err := prompter.Confirm("Do you want to move the password out of the preferences file?")
	if err != nil {
		return err
	}
	if !move {
		_, _ = fmt.Fprintln(out, "Use the --no-keychain flag to continue with the plaintext password.")
		return ErrPlaintextPassword
	}

	if err := store.Set(p.JSSURL, p.JSSUser, p.JSSPass); err != nil {
		return err
	}
	p.JSSPass = ""
	if err := p.Save(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Password moved into the secret store")
	return nil
}

// Configure asks for the JSS URL, user, password and TLS verification and
// writes them to path. The password goes to the secret store unless
// noKeychain is set, in which case it is written to the file. Answers
// default to the values already in the file, if any.
func Configure(path string, prompter Prompter, out io.Writer, noKeychain bool, passphrase func() (string, error)) (*Prefs, error) {
	p := &Prefs{}
	if existing, err := Load(path); err == nil {
		p = existing
	} else if !errors.Is(err, ErrPrefsNotFound) {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, err
		}
		_, _ = fmt.Fprintf(out, "Ignoring unreadable preferences in %s: %v\n", path, err)
	}
	p.path = path

	_, _ = fmt.Fprintf(out, "Please answer the following questions to write the preferences file %s.\n", path)

	var err error
	if p.JSSURL, err = prompter.Prompt("The complete URL to your JSS, with port (e.g. 'https://mycasperserver.org:8443')\nURL", p.JSSURL); err != nil {
		return nil, err
	}
	if p.JSSUser, err = prompter.Prompt("API Username", p.JSSUser); err != nil {
		return nil, err
	}
	password, err := prompter.Password("API User's Password")
	if err != nil {
		return nil, err
	}
	verify, err := prompter.Confirm("Do you want to verify that traffic is encrypted by a certificate that you trust?")
	if err != nil {
		return nil, err
	}
	p.Verify = &verify

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if noKeychain {
		p.JSSPass = password
	} else {
		p.JSSPass = ""
		if err := p.Secrets(passphrase).Set(p.JSSURL, p.JSSUser, password); err != nil {
			return nil, err
		}
		_, _ = fmt.Fprintf(out, "Password for JSS %s has been stored in the %s secret store\n", p.JSSURL, p.SecretStore)
	}

	if err := p.Save(); err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(out, "Preferences written to %s\n", filepath.Clean(path))
	return p, nil
}
