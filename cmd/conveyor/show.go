package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show a request and its pipeline state",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, err := svc.Docs.GetRequest(ctx, args[0])
	if err != nil {
		return err
	}

	rec, err := svc.Mirror.GetByBusinessID(ctx, req.ID)
	if err != nil && !errors.Is(err, mirror.ErrNotFound) {
		return err
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"request": req,
			"mirror":  rec,
		})
		return nil
	}

	fmt.Printf("%s  %s\n", ui.RenderHeader(string(req.Kind)), req.Title)
	fmt.Printf("%s  priority P%d\n", ui.RenderMuted(req.ID), req.Priority)
	if req.Synced() {
		fmt.Printf("card #%d  %s\n", req.TrackerNumber, ui.RenderMuted(req.TrackerURL))
	} else {
		fmt.Println(ui.RenderMuted("not on the board yet"))
	}
	if rec != nil {
		line := statusStyle(rec.Status).Render(string(rec.Status))
		if rec.ReviewStatus != "" {
			line += "  " + ui.RenderWaiting(string(rec.ReviewStatus))
		}
		if rec.ImplementationPhase != "" {
			line += "  phase " + ui.RenderAccent(rec.ImplementationPhase)
		}
		fmt.Println(line)
	}
	if req.Body != "" {
		fmt.Println()
		fmt.Print(ui.RenderMarkdown(req.Body))
	}
	return nil
}
