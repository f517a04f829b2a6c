// Package sanitize cleans user text before it enters a conversation.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSize bounds event text when no limit is configured.
const DefaultMaxSize = 4096

var (
	ErrTooLarge    = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("input contains invalid UTF-8 sequences")
)

// Text enforces the size limit, rejects invalid UTF-8 and strips control
// characters other than newline, tab and carriage return. Oversized input is
// rejected, not truncated. A limit <= 0 means DefaultMaxSize.
func Text(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, unsafe) < 0 {
		return input, nil
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafe(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafe(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
