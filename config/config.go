// Package config loads application configuration from environment
// variables, with optional .env file support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbeddingConfig selects the embedding model used for both ingestion
// and query embedding. The provider, model, and dimension must not
// change once an index has been populated.
type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// LLMConfig selects the default text-generation backend.
type LLMConfig struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

type Config struct {
	Addr    string
	DataDir string

	// IndexBackend is "memory" or "postgres".
	IndexBackend string
	PostgresDSN  string

	Neo4jURI  string
	Neo4jUser string
	Neo4jPass string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingConfig
	LLM        LLMConfig

	ChunkSize    int
	ChunkOverlap int

	MaxQueryChars   int
	MaxAnalyzeChars int

	StatusTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:         getEnv("ADDR", ":8080"),
		DataDir:      getEnv("DATA_DIR", "./data/docs"),
		IndexBackend: getEnv("INDEX_BACKEND", "memory"),
		PostgresDSN:  getEnv("POSTGRES_DSN", "postgres://localhost:5432/copilot?sslmode=disable"),
		Neo4jURI:     getEnv("NEO4J_URI", ""),
		Neo4jUser:    getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:    getEnv("NEO4J_PASSWORD", ""),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 768),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.2"),
			Timeout:  getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},

		ChunkSize:    getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 150),

		MaxQueryChars:   getEnvInt("MAX_QUERY_CHARS", 500),
		MaxAnalyzeChars: getEnvInt("MAX_ANALYZE_CHARS", 5000),

		StatusTTL: getEnvDuration("AI_STATUS_TTL", 30*time.Second),
	}
}

// Validate catches configuration-level mistakes before any service is
// constructed.
func (c Config) Validate() error {
	if c.IndexBackend != "memory" && c.IndexBackend != "postgres" {
		return fmt.Errorf("unknown index backend: %s", c.IndexBackend)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid chunk config: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
