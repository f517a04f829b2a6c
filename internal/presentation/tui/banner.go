package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  ____            _`, "#38bdf8"},
	{` |  _ \ __ _ _ __| | ___ _   _`, "#22d3ee"},
	{` | |_) / _' | '__| |/ _ \ | | |`, "#2dd4bf"},
	{` |  __/ (_| | |  | |  __/ |_| |`, "#34d399"},
	{` |_|   \__,_|_|  |_|\___|\__, |`, "#4ade80"},
	{`                         |___/`, "#a3e635"},
}

// PrintBanner writes the Parley banner and version to w. Colors are only
// emitted when w is a color-capable terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)

	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}

// Prompt writes the input marker of the chat loop.
func Prompt(w io.Writer, label string) {
	out := termenv.NewOutput(w)
	fmt.Fprint(w, out.String(label+"> ").Bold().Foreground(out.Color("#38bdf8")))
}
