package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pulsepress configuration.
type Config struct {
	// Core settings
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Timezone string `yaml:"timezone"`

	// LLM configuration (triage + drafting)
	LLM LLMConfig `yaml:"llm"`

	// Triage thresholds and editorial focus
	Triage TriageConfig `yaml:"triage"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Dense vector index configuration
	Vector VectorConfig `yaml:"vector"`

	// Hybrid retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Feed intake configuration
	Feeds FeedsConfig `yaml:"feeds"`

	// Library store configuration
	Library LibraryConfig `yaml:"library"`

	// Drafting configuration
	Writer WriterConfig `yaml:"writer"`

	// Asset rendering configuration
	Render RenderConfig `yaml:"render"`

	// Publishing channels
	Publish PublishConfig `yaml:"publish"`

	// Preview server
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Token usage accounting
	Usage UsageConfig `yaml:"usage"`
}

// LibraryConfig configures the SQLite library store.
type LibraryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the local preview server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UsageConfig configures token usage accounting.
type UsageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "pulsepress",
		Version:  "0.3.0",
		Timezone: "Europe/Rome",

		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			TriageModel: "gpt-4o-mini",
			Timeout:     "120s",
			Temperature: 0.4,
		},

		Triage: TriageConfig{
			Niche:       "evidence-based medicine, nutrition science, and public health",
			MinScore:    6,
			BatchLimit:  50,
			Parallelism: 3,
		},

		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			Dimensions:   1536,
			BatchSize:    64,
			OllamaURL:    "http://localhost:11434",
			ChunkTokens:  400,
			ChunkOverlap: 50,
		},

		Vector: VectorConfig{
			Backend:    "qdrant",
			Collection: "pulse_chunks",
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},

		Retrieval: RetrievalConfig{
			DenseK:  24,
			SparseK: 24,
			RRFK:    60,
			FinalK:  8,
			Rerank: RerankConfig{
				Enabled: false,
				Model:   "rerank-english-v3.0",
				TopN:    8,
				Timeout: "30s",
			},
		},

		Feeds: FeedsConfig{
			Path:      "feeds.yaml",
			MaxItems:  50,
			Timeout:   "60s",
			UserAgent: "pulsepress/0.3 (+content research pipeline)",
			Apify: ApifyConfig{
				Actor: "apify/website-content-crawler",
			},
		},

		Library: LibraryConfig{
			DatabasePath: "library.db",
		},

		Writer: WriterConfig{
			Audience:        "clinicians and health-curious readers",
			Tone:            "clear, evidence-first, no hype",
			Language:        "en",
			MaxThreadChars:  280,
			CarouselSlides:  7,
			ContextChunks:   8,
			CitationStyle:   "inline",
			RequireEvidence: true,
		},

		Render: RenderConfig{
			OutputDir:  "assets",
			SpecsDir:   "specs",
			ChartTheme: "westeros",
			Brand: BrandConfig{
				Background: "#101828",
				Text:       "#f4f7fb",
				Accent:     "#4cc3ff",
			},
			Carousel: CarouselConfig{
				Width:  1080,
				Height: 1350,
			},
			Browser: BrowserConfig{
				Headless:       true,
				ViewportWidth:  1280,
				ViewportHeight: 800,
				Timeout:        "45s",
			},
		},

		Publish: PublishConfig{
			Timeout: "30s",
			Email: EmailConfig{
				Port: 587,
			},
		},

		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8675,
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},

		Usage: UsageConfig{
			Enabled: true,
			Path:    "usage.json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file returns defaults (with env overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Keys are per-service: they fill the matching slot without switching providers.
func (c *Config) applyEnvOverrides() {
	// Chat LLM key for the configured provider
	switch c.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}

	// Embedding key for the configured engine
	switch c.Embedding.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		}
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		}
	}

	if key := os.Getenv("COHERE_API_KEY"); key != "" {
		c.Retrieval.Rerank.APIKey = key
	}
	if key := os.Getenv("NCBI_API_KEY"); key != "" {
		c.Feeds.NCBIAPIKey = key
	}
	if token := os.Getenv("APIFY_TOKEN"); token != "" {
		c.Feeds.Apify.Token = token
	}
	if token := os.Getenv("NOTION_TOKEN"); token != "" {
		c.Publish.Notion.Token = token
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		c.Publish.Slack.Token = token
	}
	if pw := os.Getenv("SMTP_PASSWORD"); pw != "" {
		c.Publish.Email.Password = pw
	}

	// Qdrant address as host:port
	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		host, portStr, ok := strings.Cut(addr, ":")
		if ok {
			if port, err := strconv.Atoi(portStr); err == nil {
				c.Vector.Qdrant.Host = host
				c.Vector.Qdrant.Port = port
			}
		} else {
			c.Vector.Qdrant.Host = addr
		}
	}

	// Library database path
	if path := os.Getenv("PULSE_DB"); path != "" {
		c.Library.DatabasePath = path
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !isValidProvider(c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !isValidEmbeddingProvider(c.Embedding.Provider) {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if c.Vector.Backend != "qdrant" && c.Vector.Backend != "local" {
		return fmt.Errorf("invalid vector backend: %s (valid: qdrant, local)", c.Vector.Backend)
	}
	if c.Retrieval.FinalK <= 0 {
		return fmt.Errorf("retrieval.final_k must be positive, got %d", c.Retrieval.FinalK)
	}
	return nil
}

// ValidateForLLM checks that the LLM layer is usable.
func (c *Config) ValidateForLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, or GEMINI_API_KEY)")
	}
	return c.Validate()
}

// ============================================================================
// Duration helpers
// ============================================================================

// GetLLMTimeout returns the LLM request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetFetchTimeout returns the feed fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Feeds.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetRenderTimeout returns the browser render timeout as a duration.
func (c *Config) GetRenderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Render.Browser.Timeout)
	if err != nil {
		return 45 * time.Second
	}
	return d
}

// GetPublishTimeout returns the publish request timeout as a duration.
func (c *Config) GetPublishTimeout() time.Duration {
	d, err := time.ParseDuration(c.Publish.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRerankTimeout returns the rerank request timeout as a duration.
func (c *Config) GetRerankTimeout() time.Duration {
	d, err := time.ParseDuration(c.Retrieval.Rerank.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ============================================================================
// Workspace resolution (.pulse directory)
// ============================================================================

// FindWorkspaceRoot walks up from the current directory looking for a .pulse
// directory. If none is found, returns the current working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".pulse")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// DefaultConfigPath returns <workspace>/.pulse/config.yaml.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(".pulse", "config.yaml")
	}
	return filepath.Join(root, ".pulse", "config.yaml")
}

// PulseDir returns the .pulse directory for the given workspace root.
func PulseDir(workspace string) string {
	return filepath.Join(workspace, ".pulse")
}

// ResolvePath resolves a config-relative path against the workspace .pulse dir.
// Absolute paths are returned unchanged.
func ResolvePath(workspace, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, ".pulse", path)
}

// DatabasePath returns the absolute library database path for a workspace.
func (c *Config) DatabasePath(workspace string) string {
	return ResolvePath(workspace, c.Library.DatabasePath)
}

// UsagePath returns the absolute usage ledger path for a workspace.
func (c *Config) UsagePath(workspace string) string {
	return ResolvePath(workspace, c.Usage.Path)
}

// FeedsPath returns the absolute feeds.yaml path for a workspace.
func (c *Config) FeedsPath(workspace string) string {
	return ResolvePath(workspace, c.Feeds.Path)
}

// AssetsDir returns the absolute rendered-assets directory for a workspace.
func (c *Config) AssetsDir(workspace string) string {
	return ResolvePath(workspace, c.Render.OutputDir)
}

// SpecsDir returns the absolute chart/diagram spec directory for a workspace.
func (c *Config) SpecsDir(workspace string) string {
	return ResolvePath(workspace, c.Render.SpecsDir)
}
