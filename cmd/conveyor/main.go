// Command conveyor drives work items through a human-in-the-loop pipeline:
// requests are approved onto a GitHub-issues board, routed through design
// phases, implemented in phased pull requests, and completed with a final
// merge. State lives on the board; a local sqlite mirror keeps a fast copy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/artifact"
	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/flow"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

var (
	configFile string
	actorFlag  string
	jsonOutput bool

	cfg  *config.Config
	docs *docstore.Store
	mir  *mirror.Store
	svc  *flow.Service

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noSetupCommands run without config, stores, or a board connection.
var noSetupCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "conveyor - human-in-the-loop delivery pipeline",
	Long: `Conveyor moves feature requests and bug reports through a review
pipeline on a GitHub-issues board: backlog, design phases, phased
implementation, and final review. Humans approve each gate; conveyor
does the bookkeeping.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noSetupCommands[cmd.Name()] {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ~/.conveyor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor for the audit trail (default: $CONVEYOR_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// setup loads configuration, opens the local stores, and builds the flow
// service. Runs once per invocation from PersistentPreRunE.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	profile, err := config.LoadProfile("")
	if err != nil {
		return err
	}
	profile.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	docs, err = docstore.Open(cfg.DocstoreDB)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	mir, err = mirror.Open(cfg.MirrorDB)
	if err != nil {
		return fmt.Errorf("failed to open mirror: %w", err)
	}
	artifacts, err := artifact.NewFSStore(cfg.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	client := board.NewClient(cfg.BoardToken, cfg.BoardOwner, cfg.BoardRepo).
		WithBaseURL(cfg.BoardBaseURL)
	queue := notify.NewQueue(notify.LogSender{})

	svc = flow.NewService(client, docs, mir, artifacts, queue)
	svc.UndoWindow = cfg.UndoWindow
	return nil
}

func teardown() {
	drainNotifications()
	if docs != nil {
		_ = docs.Close()
	}
	if mir != nil {
		_ = mir.Close()
	}
}

// getActor resolves the audit-trail actor.
// Priority: --actor flag > CONVEYOR_ACTOR env > config > git user.name > $USER.
func getActor() engine.Actor {
	if actorFlag != "" {
		return engine.Actor(actorFlag)
	}
	if env := os.Getenv("CONVEYOR_ACTOR"); env != "" {
		return engine.Actor(env)
	}
	if cfg != nil && cfg.Actor != "" && cfg.Actor != "system" {
		return engine.Actor(cfg.Actor)
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return engine.Actor(gitUser)
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return engine.Actor(user)
	}
	return engine.ActorAdmin
}

// drainNotifications flushes queued notifications before the process exits.
// Command invocations are short-lived; the watch command uses the consumer
// loop instead.
func drainNotifications() {
	if svc == nil || svc.Notify == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Notify.Drain(ctx)
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := telemetry.Init(rootCtx, "conveyor", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	}()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		if jsonOutput {
			outputJSONError(err, "")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
