// Package main implements workspace initialization for pulse.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pulsepress/internal/config"
)

// =============================================================================
// INIT COMMAND
// =============================================================================

// initCmd scaffolds the .pulse workspace directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a pulsepress workspace",
	Long: `Creates the .pulse/ directory with a commented config.yaml, a starter
feeds.yaml, and the asset directories.

Nothing needs an API key until you run the LLM steps; fetch and the library
work offline. Set OPENAI_API_KEY (or the key for your configured provider)
before 'pulse triage' and 'pulse draft'.`,
	RunE: runInit,
}

// configTemplate is the commented starter config. It mirrors the defaults;
// uncomment and edit what you want to change. Secrets are better left to
// environment variables than written here.
const configTemplate = `# pulsepress workspace configuration
# Environment variables override the keys below: OPENAI_API_KEY,
# ANTHROPIC_API_KEY, GEMINI_API_KEY, COHERE_API_KEY, NCBI_API_KEY,
# APIFY_TOKEN, NOTION_TOKEN, SLACK_BOT_TOKEN, SMTP_PASSWORD, QDRANT_ADDR,
# PULSE_DB.

name: pulsepress
version: "0.3.0"
timezone: Europe/Rome

llm:
  provider: openai            # openai, anthropic, gemini
  model: gpt-4o               # drafting model
  triage_model: gpt-4o-mini   # cheaper model for verdicts
  # base_url: ""              # OpenAI-compatible endpoint override
  timeout: 120s
  temperature: 0.4

triage:
  # The niche statement steers every triage verdict. Be specific.
  niche: evidence-based medicine, nutrition science, and public health
  min_score: 6                # relevance floor (0-10) for shortlisting
  batch_limit: 50
  parallelism: 3

embedding:
  provider: openai            # openai, gemini, ollama
  model: text-embedding-3-small
  dimensions: 1536
  batch_size: 64
  # ollama_url: http://localhost:11434
  chunk_tokens: 400
  chunk_overlap: 50

vector:
  backend: qdrant             # qdrant, local (SQLite brute-force)
  collection: pulse_chunks
  qdrant:
    host: localhost
    port: 6334

retrieval:
  dense_k: 24
  sparse_k: 24
  rrf_k: 60
  final_k: 8
  rerank:
    enabled: false            # needs COHERE_API_KEY
    model: rerank-english-v3.0
    top_n: 8
    timeout: 30s

feeds:
  path: feeds.yaml
  max_items: 50
  timeout: 60s
  user_agent: pulsepress/0.3 (+content research pipeline)
  # allowed_domains: []       # restrict extraction when set
  # blocked_domains: []
  apify:
    actor: apify/website-content-crawler

library:
  database_path: library.db

writer:
  audience: clinicians and health-curious readers
  tone: clear, evidence-first, no hype
  language: en
  max_thread_chars: 280
  carousel_slides: 7
  context_chunks: 8
  citation_style: inline
  require_evidence: true      # refuse to draft without retrieved sources

render:
  output_dir: assets
  specs_dir: specs            # chart/diagram YAML specs; 'pulse watch' lives here
  chart_theme: westeros
  brand:
    background: "#101828"
    text: "#f4f7fb"
    accent: "#4cc3ff"
    # handle: "@yourhandle"   # stamped on carousel slide footers
  carousel:
    width: 1080
    height: 1350
  browser:
    headless: true
    viewport_width: 1280
    viewport_height: 800
    timeout: 45s

publish:
  timeout: 30s
  notion:
    # token: ""               # prefer NOTION_TOKEN
    database_id: ""
  slack:
    # token: ""               # prefer SLACK_BOT_TOKEN
    channel: ""
  email:
    host: ""
    port: 587
    username: ""
    # password: ""            # prefer SMTP_PASSWORD
    from: ""
    to: []
    subject_prefix: ""

server:
  host: 127.0.0.1
  port: 8675

logging:
  debug_mode: false           # true writes category logs under .pulse/logs/
  level: info

usage:
  enabled: true
  path: usage.json
`

func runInit(cmd *cobra.Command, args []string) error {
	ws := workspaceRoot()
	pulseDir := config.PulseDir(ws)

	cfgPath := filepath.Join(pulseDir, "config.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Workspace already initialized: %s exists.\n", cfgPath)
		fmt.Println("Edit it directly, or delete the .pulse/ directory to start over.")
		return nil
	}

	for _, dir := range []string{pulseDir,
		filepath.Join(pulseDir, "assets"),
		filepath.Join(pulseDir, "specs"),
		filepath.Join(pulseDir, "drafts"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	feedsPath := filepath.Join(pulseDir, "feeds.yaml")
	if _, err := os.Stat(feedsPath); os.IsNotExist(err) {
		if err := config.DefaultFeedList().Save(feedsPath); err != nil {
			return fmt.Errorf("write feeds: %w", err)
		}
	}

	fmt.Printf("Initialized pulsepress workspace in %s\n\n", pulseDir)
	fmt.Println("Created:")
	fmt.Println("  config.yaml   workspace configuration (commented, edit freely)")
	fmt.Println("  feeds.yaml    starter RSS + PubMed subscriptions")
	fmt.Println("  assets/       rendered charts, carousels, diagrams")
	fmt.Println("  specs/        chart/diagram specs for 'pulse render' and 'pulse watch'")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .pulse/feeds.yaml with your sources")
	fmt.Println("  2. Set the triage niche in .pulse/config.yaml")
	fmt.Println("  3. export OPENAI_API_KEY=...   (or your provider's key)")
	fmt.Println("  4. pulse fetch && pulse triage && pulse review")
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
