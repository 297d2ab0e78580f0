package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/treerag/internal/domain/mode"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
)

// Config holds the treerag API configuration.
type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Database  DatabaseConfig            `yaml:"database"`
	Storage   StorageConfig             `yaml:"storage"`
	Auth      AuthConfig                `yaml:"auth"`
	Logging   LoggingConfig             `yaml:"logging"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Embedding EmbeddingConfig           `yaml:"embedding"`
	Judge     JudgeConfig               `yaml:"judge"`
	Traversal TraversalConfig           `yaml:"traversal"`
	Audit     AuditConfig               `yaml:"audit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int `yaml:"max_body_bytes"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ProviderConfig holds OpenAI-compatible provider credentials.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig enables the embedding semantic scorer. Empty provider disables it.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours"`
}

// JudgeConfig enables the LLM relevance judge. Empty provider disables it.
type JudgeConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// TraversalConfig holds relevance model, filter and walk settings.
type TraversalConfig struct {
	SemanticWeight      float64   `yaml:"semantic_weight"`
	StructuralWeight    float64   `yaml:"structural_weight"`
	ContextualWeight    float64   `yaml:"contextual_weight"`
	DepthDecay          float64   `yaml:"depth_decay"`
	MaxDepth            int       `yaml:"max_depth"`
	MaxBranches         int       `yaml:"max_branches"`
	LLMWeight           float64   `yaml:"llm_weight"`
	KeywordWeight       float64   `yaml:"keyword_weight"`
	ConfidenceThreshold float64   `yaml:"confidence_threshold"`
	Mode                mode.Mode `yaml:"mode"`
	Concurrency         int       `yaml:"concurrency"`
}

// AuditConfig holds decision audit settings. Empty path disables persistence.
type AuditConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 8 << 20
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "treerag:"
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}
	if c.Judge.TimeoutSec <= 0 {
		c.Judge.TimeoutSec = 15
	}
	if c.Judge.MaxTokens <= 0 {
		c.Judge.MaxTokens = 200
	}
	c.Traversal.applyDefaults()
}

func (t *TraversalConfig) applyDefaults() {
	if t.SemanticWeight == 0 && t.StructuralWeight == 0 && t.ContextualWeight == 0 {
		t.SemanticWeight, t.StructuralWeight, t.ContextualWeight = 0.7, 0.2, 0.1
	}
	if t.DepthDecay <= 0 {
		t.DepthDecay = 0.9
	}
	if t.MaxDepth <= 0 {
		t.MaxDepth = 5
	}
	if t.MaxBranches <= 0 {
		t.MaxBranches = 3
	}
	if t.LLMWeight == 0 && t.KeywordWeight == 0 {
		t.LLMWeight, t.KeywordWeight = 0.7, 0.3
	}
	if t.ConfidenceThreshold <= 0 {
		t.ConfidenceThreshold = 0.6
	}
	if t.Mode == "" {
		t.Mode = mode.Filter
	}
	if t.Concurrency <= 0 {
		t.Concurrency = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if p := c.Embedding.Provider; p != "" {
		if _, ok := c.Providers[p]; !ok {
			return fmt.Errorf("embedding.provider %q is not defined in providers", p)
		}
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when embedding.provider is set")
		}
	}
	if p := c.Judge.Provider; p != "" {
		if _, ok := c.Providers[p]; !ok {
			return fmt.Errorf("judge.provider %q is not defined in providers", p)
		}
		if c.Judge.Model == "" {
			return fmt.Errorf("judge.model is required when judge.provider is set")
		}
	}
	return c.Traversal.validate()
}

func (t *TraversalConfig) validate() error {
	if _, err := rel.NewWeights(t.SemanticWeight, t.StructuralWeight, t.ContextualWeight); err != nil {
		return fmt.Errorf("traversal: %w", err)
	}
	if t.LLMWeight < 0 || t.KeywordWeight < 0 || math.Abs(t.LLMWeight+t.KeywordWeight-1) > rel.SumTolerance {
		return fmt.Errorf("traversal.llm_weight and traversal.keyword_weight must be non-negative and sum to 1")
	}
	if t.DepthDecay > 1 {
		return fmt.Errorf("traversal.depth_decay must be in (0,1], got %v", t.DepthDecay)
	}
	if t.ConfidenceThreshold > 1 {
		return fmt.Errorf("traversal.confidence_threshold must be in (0,1], got %v", t.ConfidenceThreshold)
	}
	if !t.Mode.IsValid() {
		return fmt.Errorf("traversal.mode must be \"filter\", \"model\" or \"hybrid\", got %q", t.Mode)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
