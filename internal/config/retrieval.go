package config

// EmbeddingConfig configures the text embedding engine.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, gemini, ollama
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	BaseURL    string `yaml:"base_url"`   // optional OpenAI-compatible override
	OllamaURL  string `yaml:"ollama_url"` // local ollama endpoint

	// ChunkTokens and ChunkOverlap shape the retrieval units fed to
	// the engine.
	ChunkTokens  int `yaml:"chunk_tokens"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// ValidEmbeddingProviders lists all supported embedding engines.
var ValidEmbeddingProviders = []string{"openai", "gemini", "ollama"}

func isValidEmbeddingProvider(p string) bool {
	for _, v := range ValidEmbeddingProviders {
		if p == v {
			return true
		}
	}
	return false
}

// VectorConfig configures the dense vector index backend.
type VectorConfig struct {
	Backend    string       `yaml:"backend"` // qdrant, local
	Collection string       `yaml:"collection"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig configures the qdrant gRPC connection.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// RetrievalConfig configures hybrid search.
type RetrievalConfig struct {
	// Candidate counts for each leg before fusion
	DenseK  int `yaml:"dense_k"`
	SparseK int `yaml:"sparse_k"`

	// Reciprocal rank fusion constant
	RRFK int `yaml:"rrf_k"`

	// Results returned after fusion (and rerank, when enabled)
	FinalK int `yaml:"final_k"`

	Rerank RerankConfig `yaml:"rerank"`
}

// RerankConfig configures the optional Cohere rerank stage.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	TopN    int    `yaml:"top_n"`
	Timeout string `yaml:"timeout"`
}
