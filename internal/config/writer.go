package config

// WriterConfig configures the drafting pipelines.
type WriterConfig struct {
	// Audience and tone are injected into every drafting prompt
	Audience string `yaml:"audience"`
	Tone     string `yaml:"tone"`
	Language string `yaml:"language"`

	// Per-kind constraints
	MaxThreadChars int `yaml:"max_thread_chars"` // per-post cap for threads
	CarouselSlides int `yaml:"carousel_slides"`  // default slide count

	// ContextChunks is the number of retrieved passages given to the writer
	ContextChunks int `yaml:"context_chunks"`

	// CitationStyle: inline, footnotes
	CitationStyle string `yaml:"citation_style"`

	// RequireEvidence makes drafting fail when retrieval returns nothing
	RequireEvidence bool `yaml:"require_evidence"`
}

// RenderConfig configures asset rendering.
type RenderConfig struct {
	// OutputDir is relative to the .pulse directory
	OutputDir string `yaml:"output_dir"`

	// SpecsDir holds chart and diagram spec YAML files, relative to the
	// .pulse directory. `pulse watch` re-renders on changes here.
	SpecsDir string `yaml:"specs_dir"`

	// ChartTheme is a go-echarts theme name (westeros, chalk, essos, ...)
	ChartTheme string `yaml:"chart_theme"`

	Brand    BrandConfig    `yaml:"brand"`
	Carousel CarouselConfig `yaml:"carousel"`
	Browser  BrowserConfig  `yaml:"browser"`

	// FontPath points at a TTF used for carousel slides.
	// Empty means the bundled Go fonts.
	FontPath string `yaml:"font_path"`
}

// BrandConfig sets the colors and footer handle stamped onto rendered assets.
// Colors are hex strings (#rrggbb).
type BrandConfig struct {
	Background string `yaml:"background"`
	Text       string `yaml:"text"`
	Accent     string `yaml:"accent"`

	// Handle is the social handle drawn in slide footers. Empty omits it.
	Handle string `yaml:"handle"`
}

// CarouselConfig sets slide geometry (Instagram portrait by default).
type CarouselConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BrowserConfig configures the headless browser used for chart screenshots.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	Timeout        string `yaml:"timeout"`

	// BinPath overrides browser auto-detection
	BinPath string `yaml:"bin_path"`
}
