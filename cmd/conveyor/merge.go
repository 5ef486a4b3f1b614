package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <request-id> <pr-number>",
	Short: "Merge an implementation or final pull request",
	Long: `Merge a phase pull request for a request under implementation.
Intermediate phases bump the phase tracker and return the card to
Implementation; the last phase holds the card in Final Review.

With --final the merge is the completion merge: the card moves to Done,
the implementation log is archived, and working branches are cleaned up.

Merges are retryable: re-running after a partial failure picks up the
existing merge commit instead of failing.`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().Bool("final", false, "This is the completion merge")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	prNumber, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid PR number %q: %w", args[1], err)
	}
	final, _ := cmd.Flags().GetBool("final")

	var result *flow.MergeResult
	if final {
		result, err = svc.MergeFinalPR(cmd.Context(), args[0], prNumber, getActor())
	} else {
		result, err = svc.MergeImplementationPR(cmd.Context(), args[0], prNumber, getActor())
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(result)
		return nil
	}
	fmt.Printf("Merged PR #%d (%s)\n", prNumber, result.MergeCommitSHA)
	switch {
	case result.AdvancedTo == status.StatusDone:
		fmt.Println(ui.RenderDone("Item complete."))
	case result.NextPhase != "":
		fmt.Printf("Back to Implementation, phase %s\n", ui.RenderAccent(result.NextPhase))
	default:
		fmt.Printf("Moved to %s\n", ui.RenderAccent(string(result.AdvancedTo)))
	}
	return nil
}
