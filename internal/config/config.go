// Package config provides file-based configuration for relief.
// Settings are layered with the following precedence, highest first:
// process environment, a .env file, the YAML config file, built-in
// defaults. Every setting ends up as an environment variable, so the rest
// of the program reads only the environment.
//
// .env search order: RELIEF_ENV_FILE, then ./.env.
//
// YAML search order:
//  1. --config CLI flag (explicit path)
//  2. RELIEF_CONFIG environment variable
//  3. ~/.relief/config.yaml
//  4. ./relief.yaml
//
// If neither file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model configures the optional chat model used by /api/recommend.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector selects and configures the vector index backend.
	Vector VectorConfig `yaml:"vector"`

	// Qdrant configures the Qdrant connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Sync configures the index synchronizer.
	Sync SyncConfig `yaml:"sync"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Store configures the record database.
	Store StoreConfig `yaml:"store"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	// Empty disables the model.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// MaxContextTokens bounds the recommend summary prompt.
	MaxContextTokens int `yaml:"max_context_tokens"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, azure, ollama).
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	// CachePath enables the on-disk embedding cache.
	CachePath string `yaml:"cache_path"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Backend is "qdrant" (default) or "memory".
	Backend string `yaml:"backend"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port              int    `yaml:"port"`
	ProductCollection string `yaml:"product_collection"`
	OrderCollection   string `yaml:"order_collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// SyncConfig holds index synchronizer settings.
type SyncConfig struct {
	// Mode is "async" (default) or "inline".
	Mode    string `yaml:"mode"`
	Queue   int    `yaml:"queue"`
	Workers int    `yaml:"workers"`
	// ReconcileInterval is a Go duration ("15m"). Empty or "0" disables
	// the periodic reconciler.
	ReconcileInterval string `yaml:"reconcile_interval"`
	// JournalRetention is a Go duration; serve prunes older journal rows
	// at startup. Defaults to one week.
	JournalRetention string `yaml:"journal_retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RELIEF_API_KEY.
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	TopK      int     `yaml:"top_k"`
}

// StoreConfig holds record database settings.
type StoreConfig struct {
	// DBPath is the SQLite database path. Defaults to ~/.relief/relief.db.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"RELIEF_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Model.MaxContextTokens) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"RELIEF_EMBED_CACHE", func(c *Config) string { return c.Embedding.CachePath }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Vector.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_PRODUCT_COLLECTION", func(c *Config) string { return c.Qdrant.ProductCollection }},
	{"QDRANT_ORDER_COLLECTION", func(c *Config) string { return c.Qdrant.OrderCollection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RELIEF_SYNC_MODE", func(c *Config) string { return c.Sync.Mode }},
	{"RELIEF_SYNC_QUEUE", func(c *Config) string { return intStr(c.Sync.Queue) }},
	{"RELIEF_SYNC_WORKERS", func(c *Config) string { return intStr(c.Sync.Workers) }},
	{"RELIEF_RECONCILE_INTERVAL", func(c *Config) string { return c.Sync.ReconcileInterval }},
	{"RELIEF_JOURNAL_RETENTION", func(c *Config) string { return c.Sync.JournalRetention }},
	{"RELIEF_HOST", func(c *Config) string { return c.Server.Host }},
	{"RELIEF_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RELIEF_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RELIEF_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"RELIEF_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"RELIEF_RECOMMEND_TOP_K", func(c *Config) string { return intStr(c.Server.TopK) }},
	{"RELIEF_DB", func(c *Config) string { return c.Store.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Sources records which files contributed settings.
type Sources struct {
	// DotEnv is the .env file that was loaded, or "".
	DotEnv string
	// YAML is the YAML config file that was loaded, or "".
	YAML string
}

// Load applies the .env file and then the YAML config file to the process
// environment. Variables that are already set are never overwritten.
func Load(explicitPath string, log *slog.Logger) (Sources, error) {
	var src Sources

	envPath, err := loadDotEnv(log)
	if err != nil {
		return src, err
	}
	src.DotEnv = envPath

	yamlPath, err := loadYAML(explicitPath, log)
	if err != nil {
		return src, err
	}
	src.YAML = yamlPath
	return src, nil
}

// loadDotEnv loads RELIEF_ENV_FILE or ./.env. godotenv.Load never
// overrides variables that are already set.
func loadDotEnv(log *slog.Logger) (string, error) {
	path := os.Getenv("RELIEF_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Info("config: loaded .env file", slog.String("path", path))
	return path, nil
}

// loadYAML reads the YAML config file and applies non-empty values as
// environment variables.
func loadYAML(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RELIEF_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".relief", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("relief.yaml"); err == nil {
		return "relief.yaml"
	}
	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
