// Package main implements retrieval commands for pulse: hybrid search
// and grounded question answering.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pulsepress/internal/config"
	"pulsepress/internal/embedding"
	"pulsepress/internal/library"
	"pulsepress/internal/llm"
	"pulsepress/internal/retrieval"
	"pulsepress/internal/vector"
)

var searchLimit int

// =============================================================================
// SEARCH COMMAND
// =============================================================================

// searchCmd runs a hybrid query over the indexed library
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed library (dense + BM25, fused)",
	Long: `Runs the query through both retrieval legs: dense vectors over the
embedded chunks and BM25 over the text, fused by reciprocal rank. With
retrieval.rerank.enabled and COHERE_API_KEY set, a rerank pass reorders the
fused candidates.

Example:
  pulse search "GLP-1 kidney outcomes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	searcher, cleanup, err := buildSearcher(cfg, lib)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, flushUsage := withUsage(ctx, cfg, ws, "search")
	defer flushUsage()

	results, err := searcher.Search(ctx, query, retrieval.Options{Limit: searchLimit})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("Nothing indexed matches. Run 'pulse index' after shortlisting items.")
		return nil
	}

	for i, r := range results {
		marker := ""
		if r.Reranked {
			marker = " rerank"
		}
		fmt.Printf("%2d. [%.3f%s] %s  (%s)\n", i+1, r.Score, marker, r.Title, r.Source)
		if r.URL != "" {
			fmt.Printf("    %s\n", r.URL)
		}
		fmt.Printf("    %s\n\n", snippet(r.Text, 220))
	}
	return nil
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// askCmd answers a question grounded in the library
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question using only the indexed library",
	Long: `Retrieves supporting chunks and asks the LLM to answer with inline [n]
citations, using only those sources. When the library has nothing relevant,
the answer says so instead of improvising.

Example:
  pulse ask "What did the FLOW trial show for kidney outcomes?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForLLM(); err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	searcher, cleanup, err := buildSearcher(cfg, lib)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := llm.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, flushUsage := withUsage(ctx, cfg, ws, "ask")
	defer flushUsage()

	answer, err := searcher.Ask(ctx, client, query, retrieval.Options{Limit: searchLimit})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range answer.Sources {
			fmt.Printf("  [%d] %s (%s)\n", i+1, src.Title, src.URL)
		}
	}
	return nil
}

// buildSearcher wires the hybrid retrieval stack. The cleanup closes the
// dense index connection.
func buildSearcher(cfg *config.Config, lib *library.Library) (*retrieval.Searcher, func(), error) {
	engine, err := embedding.NewEngine(cfg.Embedding, embedding.TaskQuery)
	if err != nil {
		return nil, nil, err
	}
	dense, err := vector.New(cfg.Vector, lib)
	if err != nil {
		return nil, nil, err
	}
	var rerank *retrieval.CohereReranker
	if cfg.Retrieval.Rerank.Enabled {
		rerank = retrieval.NewCohereReranker(cfg.Retrieval.Rerank, cfg.GetRerankTimeout())
	}
	searcher := retrieval.NewSearcher(lib, engine, dense, rerank, cfg.Retrieval)
	return searcher, func() { _ = dense.Close() }, nil
}

// snippet flattens whitespace and truncates for one-line display.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Max results (0 = retrieval.final_k)")
	askCmd.Flags().IntVar(&searchLimit, "limit", 0, "Max supporting chunks (0 = retrieval.final_k)")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
}
