package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history <request-id>",
	Short: "Show a request's transition history",
	Long: `Show the recorded transitions for a request, newest first. History
is a local diagnostic trail; board state is always authoritative.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := mir.History(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		fmt.Println(ui.RenderMuted("no history"))
		return nil
	}
	for _, e := range entries {
		from := string(e.FromStatus)
		if from == "" {
			from = "-"
		}
		line := fmt.Sprintf("%s  %-10s %s -> %s",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Operation, ui.RenderMuted(from), ui.RenderAccent(string(e.ToStatus)))
		if e.ToReview != "" {
			line += "  " + ui.RenderWaiting(string(e.ToReview))
		}
		line += "  " + ui.RenderMuted("by "+e.Actor)
		fmt.Println(line)
	}
	return nil
}
