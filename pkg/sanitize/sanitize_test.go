package sanitize_test

import (
	"strings"
	"testing"

	"github.com/aretw0/parley/pkg/sanitize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello world", "hello world"},
		{"keeps whitespace controls", "a\tb\r\nc", "a\tb\r\nc"},
		{"strips ansi escape", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"strips null and bell", "a\x00b\x07c", "abc"},
		{"unicode", "olá 👋", "olá 👋"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitize.Text(tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestText_Rejects(t *testing.T) {
	_, err := sanitize.Text(strings.Repeat("a", sanitize.DefaultMaxSize+1), 0)
	assert.ErrorIs(t, err, sanitize.ErrTooLarge)

	_, err = sanitize.Text("abcdef", 5)
	assert.ErrorIs(t, err, sanitize.ErrTooLarge)

	_, err = sanitize.Text("bad \xff byte", 0)
	assert.ErrorIs(t, err, sanitize.ErrInvalidUTF8)
}
