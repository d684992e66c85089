// Package output writes enumeration results as JSON lines.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
)

// Ensure Writer implements the interface.
var _ driven.ResultWriter = (*Writer)(nil)

// Writer appends one JSON object per line, flushing after every record.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
}

// NewWriter wraps w. The caller owns w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

// Write encodes rec as a single line.
func (w *Writer) Write(rec domain.ResultRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return w.buf.Flush()
}

// OpenFile opens path for results. Without overwrite an existing file is
// appended to; with it the file is truncated.
func OpenFile(path string, overwrite bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return f, nil
}
