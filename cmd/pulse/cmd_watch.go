package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pulsepress/internal/render"
	"pulsepress/internal/watch"
)

// =============================================================================
// WATCH COMMAND
// =============================================================================

// watchCmd re-renders spec files as they change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-render chart and diagram specs on save",
	Long: `Watches .pulse/specs/ and re-renders any chart or diagram spec you
save there. Pair it with 'pulse serve' to see edits live in the browser.

All existing specs are rendered once on startup. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	w, err := watch.New(render.NewRenderer(lib, cfg, ws), cfg.SpecsDir(ws))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Rescan(ctx); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.SpecsDir(ws))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	w.Stop()

	stats := w.Stats()
	fmt.Printf("\n%d events, %d renders, %d failures.\n", stats.Events, stats.Renders, stats.Failures)
	if stats.LastPath != "" {
		fmt.Printf("Last spec: %s\n", stats.LastPath)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
