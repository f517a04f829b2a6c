package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/ports"
)

// RenderFunc turns a message value into display text (e.g. Markdown to ANSI).
type RenderFunc func(text string) (string, error)

// Writer prints text messages to an io.Writer.
type Writer struct {
	id     string
	mu     sync.Mutex
	out    io.Writer
	render RenderFunc
	prefix string
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithRenderer sets the function used to format values.
func WithRenderer(fn RenderFunc) WriterOption {
	return func(w *Writer) {
		w.render = fn
	}
}

// WithPrefix prepends a marker to each message (e.g. "bot> ").
func WithPrefix(prefix string) WriterOption {
	return func(w *Writer) {
		w.prefix = prefix
	}
}

// NewWriter creates a writer processor.
func NewWriter(id string, out io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{id: id, out: out}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) ID() string { return w.id }

// Send writes the message value followed by a newline.
func (w *Writer) Send(ctx context.Context, req ports.OutputRequest) error {
	text := req.Message.Value
	if w.render != nil {
		rendered, err := w.render(text)
		if err != nil {
			return fmt.Errorf("failed to render message: %w", err)
		}
		text = strings.TrimRight(rendered, "\n")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s%s\n", w.prefix, text)
	return err
}
