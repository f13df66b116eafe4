package workload

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Prompter asks the operator a yes/no question and blocks for the answer.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// TerminalPrompter reads single-character answers line by line.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter returns a prompter reading from in and writing the
// question to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Confirm asks until it gets an answer starting with y or n. It fails only
// when the input is exhausted.
func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s (y/n): ", question)

		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			switch answer[0] {
			case 'y', 'Y':
				return true, nil
			case 'n', 'N':
				return false, nil
			}
		}

		if err != nil {
			return false, pkgerrors.Wrap(err, "failed to read answer")
		}
	}
}
