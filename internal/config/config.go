package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Extract   ExtractConfig   `yaml:"extract"`
	Speech    SpeechConfig    `yaml:"speech"`
	Handles   HandleConfig    `yaml:"handles"`
	Jobs      JobConfig       `yaml:"jobs"`
	Queue     QueueConfig     `yaml:"queue"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	PublicBaseURL string   `yaml:"public_base_url"`
	CORSOrigins   []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int    `yaml:"max_conns"`
	MinConns       int    `yaml:"min_conns"`
	MigrationsPath string `yaml:"migrations_path"` // empty uses the embedded schema
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig enables authentication when either a JWT secret or API keys
// are set. API keys are "owner:key" pairs.
type AuthConfig struct {
	JWTSecret    string   `yaml:"jwt_secret"`
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
}

type LLMConfig struct {
	OpenAIKey        string `yaml:"openai_key"`
	AnthropicKey     string `yaml:"anthropic_key"`
	OllamaURL        string `yaml:"ollama_url"`
	DefaultProvider  string `yaml:"default_provider"`
	DefaultModel     string `yaml:"default_model"`
	FallbackProvider string `yaml:"fallback_provider"`
	MaxRetries       int    `yaml:"max_retries"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ExtractConfig struct {
	Backend  string        `yaml:"backend"` // "gemini", "local" or "llm"
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type SpeechConfig struct {
	Backend          string        `yaml:"backend"` // "gemini", "openai" or "local"
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxChars         int           `yaml:"max_chars"`
	MaxDialogueChars int           `yaml:"max_dialogue_chars"`
	OpenAIModel      string        `yaml:"openai_model"`
	PiperBinPath     string        `yaml:"piper_bin_path"`
	PiperModel       string        `yaml:"piper_model"`
	PiperSampleRate  int           `yaml:"piper_sample_rate"`
}

type HandleConfig struct {
	Backend string        `yaml:"backend"` // "memory" or "redis"
	TTL     time.Duration `yaml:"ttl"`
}

// JobConfig bounds how long a job may stay busy. A run older than
// StaleAfter is treated as lost and the job may be started again.
type JobConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"`
}

type QueueConfig struct {
	Async       bool `yaml:"async"`
	Concurrency int  `yaml:"concurrency"`
}

type StorageConfig struct {
	ArchiveEnabled bool   `yaml:"archive_enabled"`
	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseKey    string `yaml:"supabase_key"`
	Bucket         string `yaml:"bucket"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, CORSOrigins: []string{"*"}},
		Database: DatabaseConfig{
			MaxConns: 20,
			MinConns: 5,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Auth:  AuthConfig{APIKeyHeader: "X-API-Key"},
		LLM: LLMConfig{
			OllamaURL:       "http://localhost:11434",
			DefaultProvider: "openai",
			DefaultModel:    "gpt-4o-mini",
			MaxRetries:      3,
		},
		Gemini: GeminiConfig{BaseURL: "https://generativelanguage.googleapis.com"},
		Extract: ExtractConfig{
			Backend:  "gemini",
			Model:    "gemini-3-flash-preview",
			Timeout:  2 * time.Minute,
			CacheTTL: 24 * time.Hour,
		},
		Speech: SpeechConfig{
			Backend:          "gemini",
			Model:            "gemini-2.5-flash-preview-tts",
			Timeout:          3 * time.Minute,
			MaxChars:         5000,
			MaxDialogueChars: 4000,
			OpenAIModel:      "gpt-4o-mini-tts",
			PiperBinPath:     "piper",
			PiperSampleRate:  22050,
		},
		Handles:   HandleConfig{Backend: "memory", TTL: time.Hour},
		Jobs:      JobConfig{StaleAfter: 15 * time.Minute},
		Queue:     QueueConfig{Concurrency: 4},
		Storage:   StorageConfig{Bucket: "audiobooks"},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if c.Server.Port, err = getEnvInt("SERVER_PORT", c.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	c.Server.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.Server.PublicBaseURL)
	c.Server.CORSOrigins = getEnvList("CORS_ORIGINS", c.Server.CORSOrigins)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	if c.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if c.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", c.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	c.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.APIKeyHeader = getEnv("API_KEY_HEADER", c.Auth.APIKeyHeader)
	c.Auth.APIKeys = getEnvList("API_KEYS", c.Auth.APIKeys)

	c.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", c.LLM.OpenAIKey)
	c.LLM.AnthropicKey = getEnv("ANTHROPIC_API_KEY", c.LLM.AnthropicKey)
	c.LLM.OllamaURL = getEnv("OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.DefaultProvider = getEnv("LLM_DEFAULT_PROVIDER", c.LLM.DefaultProvider)
	c.LLM.DefaultModel = getEnv("LLM_DEFAULT_MODEL", c.LLM.DefaultModel)
	c.LLM.FallbackProvider = getEnv("LLM_FALLBACK_PROVIDER", c.LLM.FallbackProvider)
	if c.LLM.MaxRetries, err = getEnvInt("LLM_MAX_RETRIES", c.LLM.MaxRetries); err != nil {
		return fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.Gemini.APIKey))
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)

	c.Extract.Backend = getEnv("EXTRACT_BACKEND", c.Extract.Backend)
	c.Extract.Model = getEnv("EXTRACT_MODEL", c.Extract.Model)
	if c.Extract.Timeout, err = getEnvDuration("EXTRACT_TIMEOUT", c.Extract.Timeout); err != nil {
		return fmt.Errorf("invalid EXTRACT_TIMEOUT: %w", err)
	}
	if c.Extract.CacheTTL, err = getEnvDuration("EXTRACT_CACHE_TTL", c.Extract.CacheTTL); err != nil {
		return fmt.Errorf("invalid EXTRACT_CACHE_TTL: %w", err)
	}

	c.Speech.Backend = getEnv("SPEECH_BACKEND", c.Speech.Backend)
	c.Speech.Model = getEnv("SPEECH_MODEL", c.Speech.Model)
	if c.Speech.Timeout, err = getEnvDuration("SPEECH_TIMEOUT", c.Speech.Timeout); err != nil {
		return fmt.Errorf("invalid SPEECH_TIMEOUT: %w", err)
	}
	if c.Speech.MaxChars, err = getEnvInt("SPEECH_MAX_CHARS", c.Speech.MaxChars); err != nil {
		return fmt.Errorf("invalid SPEECH_MAX_CHARS: %w", err)
	}
	if c.Speech.MaxDialogueChars, err = getEnvInt("SPEECH_MAX_DIALOGUE_CHARS", c.Speech.MaxDialogueChars); err != nil {
		return fmt.Errorf("invalid SPEECH_MAX_DIALOGUE_CHARS: %w", err)
	}
	c.Speech.OpenAIModel = getEnv("SPEECH_OPENAI_MODEL", c.Speech.OpenAIModel)
	c.Speech.PiperBinPath = getEnv("SPEECH_PIPER_BIN", c.Speech.PiperBinPath)
	c.Speech.PiperModel = getEnv("SPEECH_PIPER_MODEL", c.Speech.PiperModel)
	if c.Speech.PiperSampleRate, err = getEnvInt("SPEECH_PIPER_SAMPLE_RATE", c.Speech.PiperSampleRate); err != nil {
		return fmt.Errorf("invalid SPEECH_PIPER_SAMPLE_RATE: %w", err)
	}

	c.Handles.Backend = getEnv("HANDLE_BACKEND", c.Handles.Backend)
	if c.Handles.TTL, err = getEnvDuration("HANDLE_TTL", c.Handles.TTL); err != nil {
		return fmt.Errorf("invalid HANDLE_TTL: %w", err)
	}

	if c.Jobs.StaleAfter, err = getEnvDuration("JOB_STALE_AFTER", c.Jobs.StaleAfter); err != nil {
		return fmt.Errorf("invalid JOB_STALE_AFTER: %w", err)
	}

	if c.Queue.Async, err = getEnvBool("QUEUE_ASYNC", c.Queue.Async); err != nil {
		return fmt.Errorf("invalid QUEUE_ASYNC: %w", err)
	}
	if c.Queue.Concurrency, err = getEnvInt("QUEUE_CONCURRENCY", c.Queue.Concurrency); err != nil {
		return fmt.Errorf("invalid QUEUE_CONCURRENCY: %w", err)
	}

	if c.Storage.ArchiveEnabled, err = getEnvBool("ARCHIVE_ENABLED", c.Storage.ArchiveEnabled); err != nil {
		return fmt.Errorf("invalid ARCHIVE_ENABLED: %w", err)
	}
	c.Storage.SupabaseURL = getEnv("SUPABASE_URL", c.Storage.SupabaseURL)
	c.Storage.SupabaseKey = getEnv("SUPABASE_SERVICE_KEY", c.Storage.SupabaseKey)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)

	if c.RateLimit.RPS, err = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if c.RateLimit.Burst, err = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var missing []string
	if (c.Extract.Backend == "gemini" || c.Speech.Backend == "gemini") && c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Speech.Backend == "openai" && c.LLM.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Speech.Backend == "local" && c.Speech.PiperModel == "" {
		missing = append(missing, "SPEECH_PIPER_MODEL")
	}
	if c.Queue.Async && c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Storage.ArchiveEnabled && (c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "") {
		missing = append(missing, "SUPABASE_URL", "SUPABASE_SERVICE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	// Queued tasks may run for the speech timeout plus a minute.
	if s := c.Jobs.StaleAfter; s > 0 && (s <= c.Speech.Timeout+time.Minute || s <= c.Extract.Timeout) {
		return fmt.Errorf("JOB_STALE_AFTER (%s) must exceed the speech and extract timeouts", s)
	}

	switch c.Handles.Backend {
	case "memory":
		if c.Queue.Async {
			return fmt.Errorf("QUEUE_ASYNC requires HANDLE_BACKEND=redis")
		}
	case "redis":
	default:
		return fmt.Errorf("unknown HANDLE_BACKEND %q", c.Handles.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
