package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a request onto the board",
	Long: `Approve a request: create its board card and mark the request in
progress. Bugs go straight to investigation; features wait in the backlog
for a routing decision unless --route names a destination.

Approval is not retryable. A request that already has a card fails
rather than creating a duplicate.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().String("route", "", "Route the fresh card straight to a destination")
	approveCmd.Flags().String("status", "", "Create the card directly in the given phase, bypassing routing")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	route, _ := cmd.Flags().GetString("route")
	statusOverride, _ := cmd.Flags().GetString("status")

	opts := flow.ApproveOptions{
		InitialRoute: route,
		Actor:        getActor(),
	}
	if statusOverride != "" {
		st, err := status.ParseStatus(statusOverride)
		if err != nil {
			return err
		}
		opts.InitialStatusOverride = &st
	}

	result, err := svc.Approve(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(result)
		return nil
	}
	fmt.Printf("Approved: card #%d (%s)\n", result.TrackerNumber, result.TrackerURL)
	if result.NeedsRouting {
		fmt.Println(ui.RenderWaiting("Waiting in backlog for a routing decision. Route with:"))
		fmt.Printf("  conveyor route %s <destination>\n", args[0])
	}
	return nil
}
