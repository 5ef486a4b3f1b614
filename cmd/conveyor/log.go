package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <request-id> <entry...>",
	Short: "Append an entry to a request's implementation log",
	Long: `Append a line to the request's implementation log in the artifact
store. The log travels with the item and is archived when the final PR
merges.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	entry := strings.Join(args[1:], " ")
	if err := svc.AppendLog(cmd.Context(), args[0], entry); err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(map[string]string{"logged": args[0]})
		return nil
	}
	fmt.Println("Logged.")
	return nil
}
