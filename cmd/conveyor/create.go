package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new feature request or bug report",
	Long: `Create a request in the local document store. The request stays
local until it is approved onto the board with 'conveyor approve'.

With no title argument and an interactive terminal, an entry form opens.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().String("kind", "feature", "Item kind: feature or bug")
	createCmd.Flags().String("body", "", "Request body (markdown)")
	createCmd.Flags().IntP("priority", "p", 2, "Priority: 0 (critical) to 4 (none)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	kindStr, _ := cmd.Flags().GetString("kind")
	body, _ := cmd.Flags().GetString("body")
	priority, _ := cmd.Flags().GetInt("priority")

	var title string
	if len(args) == 1 {
		title = args[0]
	}

	if title == "" {
		if !ui.IsInteractive() {
			return fmt.Errorf("title is required (pass it as an argument or run interactively)")
		}
		if err := createForm(&title, &body, &kindStr); err != nil {
			return err
		}
	}

	kind := status.ItemKind(kindStr)
	if !kind.IsValid() {
		return fmt.Errorf("invalid kind %q (want feature or bug)", kindStr)
	}
	if priority < 0 || priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4, got %d", priority)
	}

	req := &docstore.Request{
		Kind:         kind,
		Title:        title,
		Body:         body,
		SourceStatus: docstore.SourceStatusOpen,
		Priority:     priority,
	}
	if err := docs.CreateRequest(cmd.Context(), req); err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(req)
		return nil
	}
	fmt.Printf("Created %s %s: %s\n", kindStr, req.ID, title)
	return nil
}

func createForm(title, body, kind *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("e.g., Add dark mode to settings").
				Value(title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Placeholder("What needs to happen and why...").
				Value(body),
			huh.NewSelect[string]().
				Title("Kind").
				Options(
					huh.NewOption("Feature", "feature"),
					huh.NewOption("Bug", "bug"),
				).
				Value(kind),
		),
	)
	return form.Run()
}
