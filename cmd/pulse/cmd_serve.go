package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pulsepress/internal/server"
)

var serveAddr string

// =============================================================================
// SERVE COMMAND
// =============================================================================

// serveCmd runs the local preview server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local preview server",
	Long: `Serves the library over HTTP for browsing: item and draft lists,
rendered draft pages, assets from .pulse/assets/, and a JSON search API.

Search needs embeddings configured; without them the endpoint explains
what is missing instead of failing. Stop with Ctrl-C.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		host, port, err := splitAddr(serveAddr)
		if err != nil {
			return err
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}

	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	// A broken retrieval stack should not take the preview pages down
	// with it; the search endpoint degrades on its own.
	var search server.Searcher
	if searcher, cleanup, err := buildSearcher(cfg, lib); err != nil {
		logger.Warn("Search disabled for this run", zap.Error(err))
	} else {
		defer cleanup()
		search = searcher
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	srv := server.NewServer(lib, cfg, search, ws)
	fmt.Printf("Preview at http://%s (Ctrl-C to stop)\n", srv.Addr())
	return srv.Run(ctx)
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bad --addr %q: want host:port", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad --addr port %q", portStr)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host, port, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (host:port, default from config)")
	rootCmd.AddCommand(serveCmd)
}
