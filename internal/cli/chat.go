package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/sanitize"
)

// ChatOptions configures Chat.
type ChatOptions struct {
	ConversationID string
	Channel        string
	// Prompt prints an input marker before each read.
	Prompt bool
}

// Chat feeds lines from in to the bot as text events until EOF, "/quit" or
// ctx is done. Replies reach the user through the bot's output processors.
//
// Commands: /position, /state, /end, /quit.
func Chat(ctx context.Context, bot *parley.Bot, in io.Reader, out io.Writer, opts ChatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if opts.Prompt {
			tui.Prompt(out, "you")
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case err := <-readErr:
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		quit, err := handleLine(ctx, bot, out, opts, line)
		if err != nil || quit {
			return err
		}
	}
}

func handleLine(ctx context.Context, bot *parley.Bot, out io.Writer, opts ChatOptions, line string) (bool, error) {
	id := opts.ConversationID
	switch line {
	case "/quit":
		return true, nil
	case "/position":
		pos, err := bot.Position(ctx, id)
		if err != nil {
			return false, err
		}
		if pos.Flow == "" {
			fmt.Fprintln(out, ">>> No active flow.")
		} else {
			fmt.Fprintf(out, ">>> %s @ %s\n", pos.Flow, pos.Node)
		}
		return false, nil
	case "/state":
		state, err := bot.State(ctx, id)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, ">>> %v\n", map[string]any(state))
		return false, nil
	case "/end":
		if err := bot.EndFlow(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintln(out, ">>> Flow ended.")
		return false, nil
	}

	text, err := sanitize.Text(line, 0)
	if err != nil {
		fmt.Fprintf(out, ">>> Input rejected: %v\n", err)
		return false, nil
	}
	event := domain.Event{Type: "text", Channel: opts.Channel, Text: text}
	if err := bot.Send(ctx, id, event); err != nil {
		return false, err
	}
	bot.Wait()
	return false, nil
}
