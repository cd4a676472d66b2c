package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/rackops/imdcfg/internal/ui"
)

// Prompter asks the operator questions on out and reads answers from in.
// Secrets are read without echo when in is a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	fd     int
	isTerm bool

	mu    sync.Mutex
	saved *term.State
}

// New returns a Prompter reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTerm = true
	}
	return p
}

// Out returns the writer questions are printed to.
func (p *Prompter) Out() io.Writer {
	return p.out
}

// ReadLine reads one line of input without its line ending. A final line
// without a newline is returned as is; io.EOF is only returned when nothing
// was read.
func (p *Prompter) ReadLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecret reads a line without echo when possible.
func (p *Prompter) readSecret() (string, error) {
	if !p.isTerm {
		return p.ReadLine()
	}

	p.mu.Lock()
	if st, err := term.GetState(p.fd); err == nil {
		p.saved = st
	}
	p.mu.Unlock()

	b, err := term.ReadPassword(p.fd)
	_, _ = fmt.Fprintln(p.out)

	p.mu.Lock()
	p.saved = nil
	p.mu.Unlock()

	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Restore puts the terminal back into the state it had before a secret
// prompt. It is called on interrupt so echo is not left disabled.
func (p *Prompter) Restore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved != nil {
		_ = term.Restore(p.fd, p.saved)
		p.saved = nil
	}
}

func (p *Prompter) ask(question string) {
	_, _ = fmt.Fprint(p.out, question)
}

// Confirm asks a yes/no question. "y", "ye" and "yes" in any case mean yes;
// anything else means no.
func (p *Prompter) Confirm(question string) (bool, error) {
	p.ask(ui.PromptStyle.Render(strings.TrimRight(question, " ")) + " (y or n): ")
	answer, err := p.ReadLine()
	if err != nil {
		return false, err
	}
	return IsYes(answer), nil
}

// IsYes reports whether answer is an affirmative reply.
func IsYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "ye", "yes":
		return true
	}
	return false
}

// InputWithDefault asks for a value, showing def. An empty answer returns def.
func (p *Prompter) InputWithDefault(question, def string) (string, error) {
	if def != "" {
		p.ask(fmt.Sprintf("%s [%s]: ", question, def))
	} else {
		p.ask(question + ": ")
	}
	answer, err := p.ReadLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Username asks for the IMD username. Surrounding whitespace is dropped.
func (p *Prompter) Username() (string, error) {
	p.ask("Please type the username to set: ")
	answer, err := p.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Password asks for a password twice and repeats until both entries match.
func (p *Prompter) Password() (string, error) {
	for {
		p.ask("Please enter the password to set: ")
		first, err := p.readSecret()
		if err != nil {
			return "", err
		}
		p.ask("Please enter the password again: ")
		second, err := p.readSecret()
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		_, _ = fmt.Fprintln(p.out, ui.ErrorMessageStyle.Render("Passwords do not match. Please try again."))
	}
}

// Secret asks for a value without echo.
func (p *Prompter) Secret(question string) (string, error) {
	p.ask(question + ": ")
	return p.readSecret()
}

// Passphrase asks for the passphrase protecting saved state and encrypted
// defaults. Empty answers are refused.
func (p *Prompter) Passphrase(question string) (string, error) {
	for {
		answer, err := p.Secret(question)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		_, _ = fmt.Fprintln(p.out, ui.ErrorMessageStyle.Render("The passphrase cannot be empty."))
	}
}
