package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var decideCmd = &cobra.Command{
	Use:   "decide <request-id>",
	Short: "Answer a pending decision on a request",
	Long: `Record the choice for a request's pending decision. Routing
decisions move the item to the phase mapped to the chosen option;
informational decisions just record the answer and mark the item approved.

Pick an option with --choose, take the recommendation with --recommended,
or run interactively to choose from a list.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().Int("choose", -1, "Index of the chosen option")
	decideCmd.Flags().Bool("recommended", false, "Take the recommended option")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	requestID := args[0]
	chosen, _ := cmd.Flags().GetInt("choose")
	recommended, _ := cmd.Flags().GetBool("recommended")

	if recommended {
		result, err := svc.ChooseRecommended(ctx, requestID, getActor())
		if err != nil {
			return err
		}
		printDecisionResult(result)
		return nil
	}

	if chosen < 0 {
		decision, err := svc.Docs.GetDecision(ctx, requestID)
		if err != nil {
			return err
		}
		chosen, err = pickOption(decision)
		if err != nil {
			return err
		}
	}

	result, err := svc.SubmitDecision(ctx, requestID, chosen, status.ReviewApproved, getActor())
	if err != nil {
		return err
	}
	printDecisionResult(result)
	return nil
}

// pickOption prompts for one of the decision's options, defaulting to the
// recommendation.
func pickOption(decision *docstore.Decision) (int, error) {
	if !ui.IsInteractive() {
		return 0, fmt.Errorf("pass --choose or --recommended when not running interactively")
	}

	options := make([]huh.Option[int], 0, len(decision.Options))
	for i, opt := range decision.Options {
		label := opt.Label
		if i == decision.RecommendedIndex {
			label += " (recommended)"
		}
		options = append(options, huh.NewOption(label, i))
	}

	chosen := decision.RecommendedIndex
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title(decision.Question).
			Options(options...).
			Value(&chosen),
	))
	if err := form.Run(); err != nil {
		return 0, err
	}
	return chosen, nil
}

func printDecisionResult(result *flow.DecisionResult) {
	if jsonOutput {
		outputJSON(result)
		return
	}
	if result.RoutedTo != "" {
		fmt.Printf("Choice %d recorded, routed to %s\n", result.ChosenIndex, ui.RenderAccent(string(result.RoutedTo)))
		return
	}
	fmt.Printf("Choice %d recorded\n", result.ChosenIndex)
}
