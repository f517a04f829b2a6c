package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect and steer stored conversations",
}

// withRuntime builds the bot without the janitor, runs fn and closes it.
func withRuntime(cmd *cobra.Command, fn func(rt *cli.Runtime) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Janitor.Enabled = false

	rt, err := cli.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())
	return fn(rt)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var positionCmd = &cobra.Command{
	Use:   "position <id>",
	Short: "Print the flow and node a conversation is in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *cli.Runtime) error {
			pos, err := rt.Bot.Position(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, pos)
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <id>",
	Short: "Print a conversation's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *cli.Runtime) error {
			state, err := rt.Bot.State(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		})
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump <id> <flow> [node]",
	Short: "Move a conversation to a flow and node",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		node := ""
		if len(args) == 3 {
			node = args[2]
		}
		var opts []parley.JumpOption
		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			opts = append(opts, parley.WithResetState())
		}

		return withRuntime(cmd, func(rt *cli.Runtime) error {
			if err := rt.Bot.JumpTo(cmd.Context(), args[0], args[1], node, opts...); err != nil {
				return err
			}
			pos, err := rt.Bot.Position(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, pos)
		})
	},
}

var endCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a conversation's active flow, keeping its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *cli.Runtime) error {
			if err := rt.Bot.EndFlow(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flow of %s ended.\n", args[0])
			return nil
		})
	},
}

func init() {
	jumpCmd.Flags().Bool("reset", false, "Clear the conversation state")
	conversationCmd.AddCommand(positionCmd, stateCmd, jumpCmd, endCmd)
	rootCmd.AddCommand(conversationCmd)
}
