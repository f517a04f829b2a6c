package main

import (
	"context"
	"os"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/output"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the flows in the terminal",
	Long: `Starts an interactive conversation. Each line is sent as a text event.
Type /position, /state, /end or /quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("session")
		plain, _ := cmd.Flags().GetBool("plain")

		interactive := tui.IsInteractive(os.Stdin) && tui.IsInteractive(os.Stdout) && !plain
		writerOpts := []output.WriterOption{output.WithPrefix("bot> ")}
		if interactive {
			render, err := tui.NewRenderer(tui.TerminalWidth(os.Stdout))
			if err != nil {
				return err
			}
			writerOpts = []output.WriterOption{output.WithRenderer(render)}
			tui.PrintBanner(os.Stdout, parley.Version)
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger,
			parley.WithOutput(output.NewWriter("terminal", os.Stdout, writerOpts...)),
		)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())
		if err := rt.Bot.Start(sigCtx); err != nil {
			return err
		}

		return cli.Chat(sigCtx, rt.Bot, os.Stdin, os.Stdout, cli.ChatOptions{
			ConversationID: id,
			Channel:        "cli",
			Prompt:         interactive,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "local", "Conversation id")
	chatCmd.Flags().Bool("plain", false, "Disable Markdown rendering and the banner")
}
