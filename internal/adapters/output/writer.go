// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Writer writes branch indicators and queue state to the configured output destination.
// By default, it writes to stdout.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteIndicator writes the branch indicator as a single line, "<branch> [<sha>]".
// A nil indicator writes an empty line, meaning the file is not tracked.
func (w *Writer) WriteIndicator(ind *domain.BranchIndicator) error {
	if ind == nil {
		_, err := fmt.Fprintln(w.out)
		return err
	}
	_, err := fmt.Fprintln(w.out, ind.String())
	return err
}

// WriteLine writes a single line of text.
func (w *Writer) WriteLine(text string) error {
	_, err := fmt.Fprintln(w.out, text)
	return err
}
