package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <request-id>",
	Short: "Delete a request",
	Long: `Delete a request from the local stores. A request that already has
a board card is refused unless --force is given; with --force the card is
closed as well and the implementation log is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().Bool("force", false, "Delete even if the request is on the board")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if err := svc.Delete(cmd.Context(), args[0], force); err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(map[string]string{"deleted": args[0]})
		return nil
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
