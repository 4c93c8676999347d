package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// AutoPrompter affirms every step. Used when safeguards.auto_confirm is set.
type AutoPrompter struct{}

func (AutoPrompter) Confirm(context.Context, int, int) (Response, error) { return Affirm, nil }
func (AutoPrompter) Secret(context.Context) (string, error)              { return "", nil }

// ParseResponse maps operator input to a Response
func ParseResponse(s string) Response {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return Affirm
	case "n", "no":
		return Deny
	case "p", "o", "override":
		return Override
	default:
		return Unrecognized
	}
}

// TerminalPrompter asks on out and reads answers from in. The secret is read
// without echo when in is a terminal.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer
	fd  int
	tty bool

	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewTerminalPrompter wraps stdin/stdout
func NewTerminalPrompter() *TerminalPrompter {
	fd := int(os.Stdin.Fd())
	return &TerminalPrompter{in: os.Stdin, out: os.Stdout, fd: fd, tty: term.IsTerminal(fd)}
}

// NewReaderPrompter reads plain lines from in; the secret is echoed
func NewReaderPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, fd: -1}
}

func (p *TerminalPrompter) Present(summary string) {
	fmt.Fprintf(p.out, "\n=== Trade Verification ===\n%s\n", summary)
}

func (p *TerminalPrompter) Confirm(ctx context.Context, step, total int) (Response, error) {
	fmt.Fprintf(p.out, "Confirm %d/%d (y/n/p): ", step, total)
	line, err := p.readLine(ctx)
	if err != nil {
		return Unrecognized, err
	}
	return ParseResponse(line), nil
}

func (p *TerminalPrompter) Secret(ctx context.Context) (string, error) {
	fmt.Fprint(p.out, "Enter override secret: ")
	if !p.tty {
		return p.readLine(ctx)
	}

	done := make(chan lineResult, 1)
	go func() {
		b, err := term.ReadPassword(p.fd)
		done <- lineResult{line: string(b), err: err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case r := <-done:
		fmt.Fprintln(p.out)
		return r.line, r.err
	}
}

// readLine serves lines from a single background reader so an abandoned
// prompt does not lose input meant for the next one.
func (p *TerminalPrompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.lines = make(chan lineResult)
		go func() {
			sc := bufio.NewScanner(p.in)
			for sc.Scan() {
				p.lines <- lineResult{line: sc.Text()}
			}
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			for {
				p.lines <- lineResult{err: err}
			}
		}()
	})

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case r := <-p.lines:
		return r.line, r.err
	}
}
