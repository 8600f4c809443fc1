package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user questions
type Prompter interface {
	// Prompt returns the answer, or def for an empty answer
	Prompt(question, def string) (string, error)
	// Password reads a secret without echoing it
	Password(question string) (string, error)
	// Confirm asks until the answer is y or n
	Confirm(question string) (bool, error)
}

// TerminalPrompter prompts on a terminal. When the input is not a terminal
// answers are read line by line, passwords included.
type TerminalPrompter struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
}

// NewTerminalPrompter creates a prompter reading in and writing questions to out
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	p := &TerminalPrompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTTY = true
	}
	return p
}

func (p *TerminalPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Prompt asks question, showing def as the default answer
func (p *TerminalPrompter) Prompt(question, def string) (string, error) {
	if def != "" {
		_, _ = fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		_, _ = fmt.Fprintf(p.out, "%s: ", question)
	}
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Password asks for a secret, without echo on a terminal
func (p *TerminalPrompter) Password(question string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", question)
	if !p.isTTY {
		return p.readLine()
	}
	secret, err := term.ReadPassword(p.fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// Confirm repeats question until the answer is y(es) or n(o)
func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	for {
		_, _ = fmt.Fprintf(p.out, "%s (y|n) ", question)
		answer, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
