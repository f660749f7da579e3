package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output size of nomic-embed-text. Other
	// Ollama models differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the embedding vector size the resolved backend
// will produce. The graph store's vector index and any external vector index
// are created with this size and reject mismatched vectors, so callers must
// use it when wiring storage. EMBEDDING_DIMENSIONS always wins when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv builds a rag.Embedder from environment variables.
//
// The embedding backend defaults to the chat backend: EMBEDDING_PROVIDER when
// set, otherwise MODEL_PROVIDER, otherwise "ollama". Credentials and endpoints
// likewise inherit from the chat provider's variables unless an
// EMBEDDING_API_KEY / EMBEDDING_ENDPOINT / EMBEDDING_MODEL override is
// present, so a single-provider deployment needs no embedding-specific
// configuration at all.
func NewFromEnv() (rag.Embedder, error) {
	backend := envFirst("EMBEDDING_PROVIDER", "MODEL_PROVIDER")
	if backend == "" {
		backend = "ollama"
	}

	switch backend {
	case "ollama":
		return newOllamaFromEnv(), nil
	case "openai":
		return newOpenAIFromEnv()
	case "azure":
		return newAzureFromEnv()
	case "bedrock", "gemini":
		// Neither exposes an embeddings surface this package speaks yet; the
		// chat side of these backends still works with an ollama or openai
		// embedder configured via EMBEDDING_PROVIDER.
		return nil, fmt.Errorf("embedder: %s has no embedding support; set EMBEDDING_PROVIDER to ollama, openai, or azure", backend)
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", backend)
	}
}

func newOllamaFromEnv() rag.Embedder {
	host := envFirst("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	return NewOllamaEmbedder(&OllamaConfig{
		Host:  host,
		Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
	})
}

func newOpenAIFromEnv() (rag.Embedder, error) {
	apiKey := envFirst("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	baseURL := getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1")
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
	}), nil
}

func newAzureFromEnv() (rag.Embedder, error) {
	apiKey := envFirst("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	endpoint := envFirst("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
	}
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    endpoint + "/openai",
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		Azure:      true,
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
	}), nil
}

// envFirst returns the first non-empty value among the named environment
// variables, or empty string.
func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the env var value, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset, empty,
// or malformed.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
