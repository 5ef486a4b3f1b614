package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored work items",
	Long: `List work items from the local mirror. The mirror is a cache of
board state; run against a fresh mirror this lists what the last board
interactions recorded.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().String("status", "", "Filter by phase")
	listCmd.Flags().String("kind", "", "Filter by kind: feature or bug")
	listCmd.Flags().Bool("synced", false, "Only items with a board card")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	statusStr, _ := cmd.Flags().GetString("status")
	kindStr, _ := cmd.Flags().GetString("kind")
	syncedOnly, _ := cmd.Flags().GetBool("synced")

	filter := mirror.Filter{SyncedOnly: syncedOnly}
	if statusStr != "" {
		st, err := status.ParseStatus(statusStr)
		if err != nil {
			return err
		}
		filter.Status = st
	}
	if kindStr != "" {
		kind := status.ItemKind(kindStr)
		if !kind.IsValid() {
			return fmt.Errorf("invalid kind %q (want feature or bug)", kindStr)
		}
		filter.Kind = kind
	}

	records, err := svc.Mirror.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(records)
		return nil
	}

	if len(records) == 0 {
		fmt.Println(ui.RenderMuted("no items"))
		return nil
	}
	for _, rec := range records {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec *mirror.Record) {
	card := ui.RenderMuted("   local")
	if rec.TrackerNumber > 0 {
		card = fmt.Sprintf("#%-7d", rec.TrackerNumber)
	}
	line := fmt.Sprintf("%-4d %s %-7s %-20s %s",
		rec.LocalID, card, rec.Kind,
		statusStyle(rec.Status).Render(string(rec.Status)), rec.Title)
	if rec.ReviewStatus != "" {
		line += "  " + ui.RenderWaiting(string(rec.ReviewStatus))
	}
	if rec.ImplementationPhase != "" {
		line += "  " + ui.RenderAccent(rec.ImplementationPhase)
	}
	fmt.Println(line)
}

// statusStyle picks the semantic color for a pipeline phase.
func statusStyle(st status.Status) lipgloss.Style {
	switch st {
	case status.StatusDone:
		return ui.DoneStyle
	case status.StatusPRReview, status.StatusFinalReview:
		return ui.WaitingStyle
	case status.StatusBacklog:
		return ui.MutedStyle
	default:
		return ui.AccentStyle
	}
}
