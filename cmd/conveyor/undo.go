package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var undoCmd = &cobra.Command{
	Use:   "undo <request-id>",
	Short: "Restore a request to an earlier state",
	Long: `Restore a request's phase (and optionally its review sub-state) to
what it was before a recent action. Undo bypasses transition rules: it can
pull an item back out of Done.

--at is when the original action happened. It accepts RFC 3339 timestamps
and natural language ("5 minutes ago", "today at 9am"). Actions older than
the undo window (default 5m) are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: runUndo,
}

func init() {
	undoCmd.Flags().String("to", "", "Phase to restore (required)")
	undoCmd.Flags().String("review", "keep", `Review sub-state to restore: "keep", "clear", or a review value`)
	undoCmd.Flags().String("at", "", "When the original action happened (default: now)")
	undoCmd.Flags().Duration("window", 0, "Override the undo window")
	_ = undoCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	toStr, _ := cmd.Flags().GetString("to")
	reviewStr, _ := cmd.Flags().GetString("review")
	atStr, _ := cmd.Flags().GetString("at")
	window, _ := cmd.Flags().GetDuration("window")

	restoreStatus, err := status.ParseStatus(toStr)
	if err != nil {
		return err
	}
	restoreReview, err := parseReviewChange(reviewStr)
	if err != nil {
		return err
	}

	timestamp := time.Now()
	if atStr != "" {
		timestamp, err = parseTimestamp(atStr)
		if err != nil {
			return err
		}
	}

	result, err := svc.Undo(cmd.Context(), args[0], flow.UndoRequest{
		RestoreStatus: restoreStatus,
		RestoreReview: restoreReview,
		Timestamp:     timestamp,
		Window:        window,
		Actor:         getActor(),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(result)
		return nil
	}
	fmt.Printf("Restored card #%d: %s -> %s\n", result.TrackerNumber,
		ui.RenderMuted(string(result.From)), ui.RenderAccent(string(result.To)))
	return nil
}

// parseReviewChange maps the --review flag onto the tri-state review change.
func parseReviewChange(raw string) (status.ReviewChange, error) {
	switch raw {
	case "keep", "":
		return status.KeepReview(), nil
	case "clear":
		return status.ClearReview(), nil
	default:
		rs := status.ReviewStatus(raw)
		if !rs.IsValid() {
			return status.ReviewChange{}, fmt.Errorf("invalid review state %q", raw)
		}
		return status.SetReview(rs), nil
	}
}

// parseTimestamp accepts RFC 3339 or natural language ("10 minutes ago").
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(raw, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", raw, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand time %q", raw)
	}
	return result.Time, nil
}
