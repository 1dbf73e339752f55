package gormstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Prompter supplies passwords that were not given on the command line
type Prompter interface {
	Password(prompt string) (string, error)
}

// TerminalPrompter reads from the controlling terminal without echo when
// there is one, otherwise one line from standard input.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewTerminalPrompter creates a prompter on stdin/stderr
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stderr}
}

// Password prompts for and returns a password
func (p *TerminalPrompter) Password(prompt string) (string, error) {
	if tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		defer tty.Close()
		if term.IsTerminal(int(tty.Fd())) {
			return readHidden(tty, tty, prompt)
		}
	}
	if term.IsTerminal(int(p.in.Fd())) {
		return readHidden(p.in, p.out, prompt)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readHidden(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	pw, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
