package config

// LLMConfig configures the chat LLM used for triage and drafting.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // optional override for OpenAI-compatible endpoints

	// Model is the default model used for drafting.
	Model string `yaml:"model"`

	// TriageModel is the (usually cheaper) model used for verdicts.
	// Falls back to Model when empty.
	TriageModel string `yaml:"triage_model"`

	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ValidProviders lists all supported chat LLM providers.
var ValidProviders = []string{"openai", "anthropic", "gemini"}

func isValidProvider(p string) bool {
	for _, v := range ValidProviders {
		if p == v {
			return true
		}
	}
	return false
}

// GetTriageModel returns the triage model, falling back to the default model.
func (l *LLMConfig) GetTriageModel() string {
	if l.TriageModel != "" {
		return l.TriageModel
	}
	return l.Model
}

// GetWriterModel returns the drafting model.
func (l *LLMConfig) GetWriterModel() string {
	return l.Model
}

// TriageConfig configures LLM shortlisting of fetched items.
type TriageConfig struct {
	// Niche is the editorial focus statement injected into triage prompts
	Niche string `yaml:"niche"`

	// MinScore is the relevance floor (0-10) for shortlisting
	MinScore int `yaml:"min_score"`

	// BatchLimit caps items triaged in one run
	BatchLimit int `yaml:"batch_limit"`

	// Parallelism bounds concurrent verdict requests
	Parallelism int `yaml:"parallelism"`
}
