package main

import (
	"fmt"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the flows as a Mermaid flowchart",
	Long:  `Renders every loaded flow as a Mermaid subgraph. With --conversation the node the conversation is in is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conversation, _ := cmd.Flags().GetString("conversation")

		return withRuntime(cmd, func(rt *cli.Runtime) error {
			set, err := rt.Bot.Flows(cmd.Context())
			if err != nil {
				return err
			}

			var overlay *graph.Overlay
			if conversation != "" {
				pos, err := rt.Bot.Position(cmd.Context(), conversation)
				if err != nil {
					return err
				}
				overlay = &graph.Overlay{Current: pos}
			}

			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(set, overlay))
			return nil
		})
	},
}

func init() {
	graphCmd.Flags().String("conversation", "", "Highlight where this conversation is")
	rootCmd.AddCommand(graphCmd)
}
