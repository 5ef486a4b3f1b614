package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/routing"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var routeCmd = &cobra.Command{
	Use:   "route <request-id> [destination]",
	Short: "Route a request to a pipeline destination",
	Long: `Route a synced request to a destination phase. Valid destinations
depend on the item's kind; run interactively without a destination to pick
from a list.

With --local the arguments are a mirror row id and a phase name instead,
for tooling that works from local list output.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().Bool("local", false, "Arguments are <local-id> <phase> instead of <request-id> [destination]")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	byLocal, _ := cmd.Flags().GetBool("local")

	if byLocal {
		if len(args) != 2 {
			return fmt.Errorf("--local requires <local-id> <phase>")
		}
		localID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid local id %q: %w", args[0], err)
		}
		result, err := svc.RouteByLocalID(ctx, localID, args[1], getActor())
		if err != nil {
			return err
		}
		printRouteResult(result)
		return nil
	}

	requestID := args[0]
	var destination string
	if len(args) == 2 {
		destination = args[1]
	}

	if destination == "" {
		var err error
		destination, err = pickDestination(ctx, requestID)
		if err != nil {
			return err
		}
	}

	result, err := svc.Route(ctx, requestID, destination, getActor())
	if err != nil {
		return err
	}
	printRouteResult(result)
	return nil
}

// pickDestination prompts for a destination valid for the request's kind.
func pickDestination(ctx context.Context, requestID string) (string, error) {
	req, err := svc.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	destinations := routing.Destinations(req.Kind)
	if !ui.IsInteractive() {
		return "", fmt.Errorf("destination is required (one of: %v)", destinations)
	}

	options := make([]huh.Option[string], 0, len(destinations))
	for _, d := range destinations {
		options = append(options, huh.NewOption(d, d))
	}
	var destination string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Route %q to", req.Title)).
			Options(options...).
			Value(&destination),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return destination, nil
}

func printRouteResult(result *flow.RouteResult) {
	if jsonOutput {
		outputJSON(result)
		return
	}
	fmt.Printf("Routed to %s\n", ui.RenderAccent(string(result.TargetStatus)))
}
