package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/ui"
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance every approved card one phase",
	Long: `Scan the board for cards whose review is approved and promote each
one step along the pipeline. Items are handled independently; one failure
never stops the batch. Cards in PR Review are reported but never advanced:
that phase completes through merges.`,
	Args: cobra.NoArgs,
	RunE: runAdvance,
}

func init() {
	advanceCmd.Flags().Bool("dry-run", false, "Report what would advance without changing anything")
	rootCmd.AddCommand(advanceCmd)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	result, err := svc.AutoAdvance(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(result)
		return nil
	}

	verb := "advanced"
	if dryRun {
		verb = "would advance"
	}
	fmt.Printf("%d approved, %s %d, %d failed\n", result.Total, verb, result.Advanced, result.Failed)
	for _, d := range result.Details {
		if d.Advanced {
			fmt.Printf("  %s #%d %s: %s -> %s\n", ui.RenderDone("✓"), d.TrackerNumber, d.Title, d.From, d.To)
		} else {
			fmt.Printf("  %s #%d %s: %s\n", ui.RenderBlocked("✗"), d.TrackerNumber, d.Title, ui.RenderMuted(d.Reason))
		}
	}
	return nil
}
