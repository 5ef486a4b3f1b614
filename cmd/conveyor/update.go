package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/flow"
)

var updateCmd = &cobra.Command{
	Use:   "update <request-id>",
	Short: "Update a request's title or priority",
	Long: `Update request fields. Title changes propagate to the board card
and the local mirror when the request is synced; priority is local-only.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().IntP("priority", "p", -1, "New priority: 0 (critical) to 4 (none)")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var opts flow.UpdateOptions
	if cmd.Flags().Changed("title") {
		title, _ := cmd.Flags().GetString("title")
		opts.Title = &title
	}
	if cmd.Flags().Changed("priority") {
		priority, _ := cmd.Flags().GetInt("priority")
		if priority < 0 || priority > 4 {
			return fmt.Errorf("priority must be between 0 and 4, got %d", priority)
		}
		opts.Priority = &priority
	}
	if opts.Title == nil && opts.Priority == nil {
		return fmt.Errorf("nothing to update (pass --title or --priority)")
	}

	if err := svc.Update(cmd.Context(), args[0], opts); err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(map[string]string{"updated": args[0]})
		return nil
	}
	fmt.Printf("Updated %s\n", args[0])
	return nil
}
