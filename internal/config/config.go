// Package config provides configuration management for the Memento assistant.
// It loads settings from environment variables with the MEMENTO_ prefix and
// provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the assistant.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Chat     ChatConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6380)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and vector-store configuration.
type StorageConfig struct {
	// VectorBackend selects the vector store implementation:
	// "postgres" (pgvector), "sqlite" (recency fallback), or "chromem"
	// (in-process, real cosine ranking). Default: sqlite.
	VectorBackend string

	// PostgresDSN is the connection string for the pgvector backend.
	PostgresDSN string

	// DataPath is the directory holding the SQLite database file.
	DataPath string
}

// LLMConfig contains chat-completion and embedding provider configuration.
type LLMConfig struct {
	ChatProvider    string // anthropic, gemini, openai (default: anthropic)
	AnthropicAPIKey string // Anthropic API key
	AnthropicModel  string // default: claude-sonnet-4-20250514
	GeminiAPIKey    string // Google Gemini API key
	GeminiModel     string // default: gemini-2.0-flash
	OpenAIAPIKey    string // OpenAI API key (chat and embeddings)
	OpenAIModel     string // default: gpt-4o-mini

	// EmbeddingProvider selects the embedding backend: openai, ollama, or
	// mock (deterministic hash vectors, no semantic similarity).
	// Default: mock when no OpenAI key is configured, else openai.
	EmbeddingProvider string
	EmbeddingModel    string // default: text-embedding-3-small / nomic-embed-text
	OllamaURL         string // Ollama API URL (default: http://localhost:11434)
}

// ChatConfig tunes prompt assembly for a chat turn.
type ChatConfig struct {
	MemoryTopK   int // Memories retrieved per turn (default: 10)
	NotesLimit   int // Relevant notes per turn (default: 5)
	MaxTokens    int // Completion token budget (default: 2048)
	RefreshQueue int // Buffered size of the memory-refresh queue (default: 64)
}

// Recognized values for SecurityConfig.SecurityMode.
const (
	SecurityModeDevelopment = "development"
	SecurityModeProduction  = "production"
)

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // development or production (default: development)
	APIToken     string // Bearer token required in production mode
	DefaultUser  string // Fallback user ID when no X-User-ID header is sent (development only)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the MEMENTO_ prefix.
func LoadConfig() (*Config, error) {
	embeddingProvider := getEnv("MEMENTO_EMBEDDING_PROVIDER", "")
	if embeddingProvider == "" {
		if os.Getenv("MEMENTO_OPENAI_API_KEY") != "" {
			embeddingProvider = "openai"
		} else {
			embeddingProvider = "mock"
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("MEMENTO_PORT", 6380),
			Host: getEnv("MEMENTO_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			VectorBackend: getEnv("MEMENTO_VECTOR_BACKEND", "sqlite"),
			PostgresDSN:   getEnv("MEMENTO_POSTGRES_DSN", ""),
			DataPath:      getEnv("MEMENTO_DATA_PATH", "./data"),
		},
		LLM: LLMConfig{
			ChatProvider:      getEnv("MEMENTO_CHAT_PROVIDER", "anthropic"),
			AnthropicAPIKey:   getEnv("MEMENTO_ANTHROPIC_API_KEY", ""),
			AnthropicModel:    getEnv("MEMENTO_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			GeminiAPIKey:      getEnv("MEMENTO_GEMINI_API_KEY", ""),
			GeminiModel:       getEnv("MEMENTO_GEMINI_MODEL", "gemini-2.0-flash"),
			OpenAIAPIKey:      getEnv("MEMENTO_OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("MEMENTO_OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingProvider: embeddingProvider,
			EmbeddingModel:    getEnv("MEMENTO_EMBEDDING_MODEL", ""),
			OllamaURL:         getEnv("MEMENTO_OLLAMA_URL", "http://localhost:11434"),
		},
		Chat: ChatConfig{
			MemoryTopK:   getEnvInt("MEMENTO_MEMORY_TOP_K", 10),
			NotesLimit:   getEnvInt("MEMENTO_NOTES_LIMIT", 5),
			MaxTokens:    getEnvInt("MEMENTO_MAX_TOKENS", 2048),
			RefreshQueue: getEnvInt("MEMENTO_REFRESH_QUEUE_SIZE", 64),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("MEMENTO_SECURITY_MODE", SecurityModeDevelopment),
			APIToken:     getEnv("MEMENTO_API_TOKEN", ""),
			DefaultUser:  getEnv("MEMENTO_DEFAULT_USER", "local"),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
