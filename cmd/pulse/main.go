// Package main implements pulse, the pulsepress CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/usage"
)

const version = "0.3.0"

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "pulsepress - a content pipeline for medical publishing",
	Long: `pulsepress pulls medical literature from RSS feeds and PubMed, triages
it with an LLM against your editorial niche, indexes the keepers for hybrid
search, drafts newsletters, threads and carousels grounded in that library,
renders charts and slide decks, and publishes to Notion, Slack or email.

All state lives in a .pulse/ directory in your workspace. Run 'pulse init'
once to create it, then:

  pulse fetch     pull new items from your feeds
  pulse triage    let the LLM score them against your niche
  pulse review    approve or reject the shortlist
  pulse index     embed the keepers for search
  pulse draft     write something grounded in the library`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspaceRoot()); err != nil {
			logger.Warn("Category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pulse version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulse %s\n", version)
	},
}

// statusCmd shows workspace status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace and pipeline status",
	RunE:  showStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .pulse parent)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.pulse/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// WORKSPACE HELPERS
// =============================================================================

// workspaceRoot resolves the workspace directory: the --workspace flag if
// set, else the nearest ancestor with a .pulse directory, else the cwd.
func workspaceRoot() string {
	if workspace != "" {
		return workspace
	}
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		cwd, _ := os.Getwd()
		return cwd
	}
	return root
}

func isInitialized(ws string) bool {
	info, err := os.Stat(config.PulseDir(ws))
	return err == nil && info.IsDir()
}

// loadWorkspace loads the config for the resolved workspace.
func loadWorkspace() (*config.Config, string, error) {
	ws := workspaceRoot()
	path := configPath
	if path == "" {
		path = filepath.Join(config.PulseDir(ws), "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, ws, nil
}

func openLibrary(cfg *config.Config, ws string) (*library.Library, error) {
	return library.Open(cfg.DatabasePath(ws))
}

// withUsage attaches a usage tracker to the context so LLM and embedding
// clients report token counts. The returned flush persists the ledger;
// call it before the command exits.
func withUsage(ctx context.Context, cfg *config.Config, ws, operation string) (context.Context, func()) {
	if !cfg.Usage.Enabled {
		return ctx, func() {}
	}
	tracker, err := usage.NewTracker(ws)
	if err != nil {
		logger.Warn("Usage tracking unavailable", zap.Error(err))
		return ctx, func() {}
	}
	ctx = usage.NewContext(ctx, tracker)
	ctx = usage.WithOperation(ctx, operation)
	return ctx, func() { _ = tracker.Save() }
}

// =============================================================================
// STATUS
// =============================================================================

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	fmt.Printf("pulse %s\n", version)
	fmt.Printf("Workspace: %s\n", ws)
	if !isInitialized(ws) {
		fmt.Println("\nNot initialized. Run 'pulse init' to create .pulse/")
		return nil
	}
	fmt.Println()

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	fmt.Printf("%s LLM: %s / %s (triage %s)\n",
		mark(cfg.LLM.APIKey != ""), cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.GetTriageModel())
	fmt.Printf("%s Embeddings: %s / %s (%dd)\n",
		mark(cfg.Embedding.APIKey != "" || cfg.Embedding.Provider == "ollama"),
		cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	fmt.Printf("%s Vector index: %s", mark(true), cfg.Vector.Backend)
	if cfg.Vector.Backend == "qdrant" {
		fmt.Printf(" (%s:%d, collection %s)", cfg.Vector.Qdrant.Host, cfg.Vector.Qdrant.Port, cfg.Vector.Collection)
	}
	fmt.Println()
	fmt.Printf("%s Rerank: enabled=%v\n",
		mark(!cfg.Retrieval.Rerank.Enabled || cfg.Retrieval.Rerank.APIKey != ""), cfg.Retrieval.Rerank.Enabled)
	fmt.Printf("%s Notion: database %s\n",
		mark(cfg.Publish.Notion.IsConfigured()), cfg.Publish.Notion.DatabaseID)
	fmt.Printf("%s Slack: channel %s\n",
		mark(cfg.Publish.Slack.IsConfigured()), cfg.Publish.Slack.Channel)
	fmt.Printf("%s Email: %s\n",
		mark(cfg.Publish.Email.IsConfigured()), cfg.Publish.Email.Host)
	fmt.Println()

	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer lib.Close()

	stats, err := lib.Stats()
	if err != nil {
		return fmt.Errorf("library stats: %w", err)
	}

	fmt.Println("Library:")
	total := 0
	for _, status := range []string{
		library.StatusNew, library.StatusTriaged, library.StatusShortlisted,
		library.StatusRejected, library.StatusIndexed, library.StatusTriageFailed,
	} {
		if n := stats.ItemsByStatus[status]; n > 0 {
			fmt.Printf("  %-14s %d\n", status, n)
			total += n
		}
	}
	fmt.Printf("  %-14s %d\n", "items total", total)
	fmt.Printf("  %-14s %d\n", "documents", stats.Documents)
	fmt.Printf("  %-14s %d (%d indexed)\n", "chunks", stats.Chunks, stats.ChunksIndexed)
	fmt.Printf("  %-14s %d\n", "drafts", stats.Drafts)
	fmt.Printf("  %-14s %d\n", "publications", stats.Publications)

	return nil
}
