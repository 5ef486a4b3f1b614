package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var designApproveCmd = &cobra.Command{
	Use:   "design-approve <request-id>",
	Short: "Approve a design phase and advance the item",
	Long: `Record an approved design document and move the item to the next
design phase. --phase names the gate being passed:

  product-dev   product development brief, advances to Product Design
  product       product design doc, advances to Technical Design
  tech          technical design doc, advances to Implementation

Approving a tech design whose document contains two or more implementation
phases also posts the phase breakdown to the board and starts the phase
tracker at 1/N.`,
	Args: cobra.ExactArgs(1),
	RunE: runDesignApprove,
}

func init() {
	designApproveCmd.Flags().String("phase", flow.PhaseTech, "Design phase: product-dev, product, or tech")
	designApproveCmd.Flags().String("artifact", "", "Artifact store key of the approved design document")
	designApproveCmd.Flags().Int("pr", 0, "Pull request the design was produced under")
	rootCmd.AddCommand(designApproveCmd)
}

func runDesignApprove(cmd *cobra.Command, args []string) error {
	phase, _ := cmd.Flags().GetString("phase")
	artifactKey, _ := cmd.Flags().GetString("artifact")
	prNumber, _ := cmd.Flags().GetInt("pr")

	result, err := svc.ApproveDesign(cmd.Context(), args[0], flow.DesignApproval{
		ArtifactKey: artifactKey,
		PhaseKind:   phase,
		PRNumber:    prNumber,
		Actor:       getActor(),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(result)
		return nil
	}
	fmt.Printf("Design approved, moved to %s\n", ui.RenderAccent(string(result.AdvancedTo)))
	if result.PhaseCount > 1 {
		fmt.Printf("Implementation tracked across %d phases\n", result.PhaseCount)
	}
	return nil
}
