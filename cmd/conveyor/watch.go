package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the notification consumer in the foreground",
	Long: `Run until interrupted, draining the notification queue on the
configured interval. When a board token file is configured it is also
watched, so a rotated token is picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc.Notify.StartConsumer(ctx, cfg.NotifyInterval)
	fmt.Printf("Watching (drain every %s). Ctrl-C to stop.\n", cfg.NotifyInterval)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.TokenFile != "" {
		g.Go(func() error {
			return config.WatchFile(ctx, cfg.TokenFile, reloadToken)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadToken re-reads the rotated token file and swaps in a board client
// carrying the new credential.
func reloadToken() {
	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token reload failed: %v\n", err)
		return
	}
	cfg.BoardToken = strings.TrimSpace(string(data))

	client := board.NewClient(cfg.BoardToken, cfg.BoardOwner, cfg.BoardRepo).
		WithBaseURL(cfg.BoardBaseURL)
	svc.Board = client
	svc.Engine = engine.New(client, svc.Mirror)
	fmt.Println("board token reloaded")
}
