package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Ollama    OllamaConfig
	Proxy     ProxyConfig
	Archive   ArchiveConfig
	Storage   StorageConfig
	Redis     RedisConfig
	S3        S3Config
	Postgres  PostgresConfig
	Day       DayConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

type InferenceConfig struct {
	Backend string // "ollama" or "openrouter"
	Timeout string // Go duration
}

type OllamaConfig struct {
	BaseURL     string
	VisionModel string
	TextModel   string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	VisionModel      string
	TextModel        string
}

type ArchiveConfig struct {
	Backend   string // sqlite, redis, s3, postgres, memory
	Name      string
	MaxBytes  int
	Token     string
	TokenHash string
}

type StorageConfig struct {
	DataDir string
}

type RedisConfig struct {
	URL string
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type PostgresConfig struct {
	URL string
}

type DayConfig struct {
	Timezone string // IANA name or "Local"
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Inference: InferenceConfig{
			Backend: "ollama",
			Timeout: "60s",
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			VisionModel: "llava",
			TextModel:   "llama3.2",
		},
		Proxy: ProxyConfig{
			VisionModel: "openai/gpt-4o-mini",
			TextModel:   "openai/gpt-4o-mini",
		},
		Archive: ArchiveConfig{
			Backend: "sqlite",
			Name:    "visual_notes.json",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		S3: S3Config{
			Bucket: "visnote",
			UseSSL: true,
		},
		Day: DayConfig{
			Timezone: "Local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.visnote.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/visnote/config.json
// and secrets come from environment variables or the secrets file.
//
// Environment variables (VISNOTE_*) override backend values on all platforms.
// A missing archive token is not an error: captures then fail their
// precondition check instead.
func Load() (Config, error) {
	b, err := newPlatformBackend()
	if err != nil {
		return Config{}, err
	}
	return loadWith(b, keychainReader{})
}

// keychain abstracts secret-store reads for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

const keychainService = "visnote"

// errSecretNotFound is wrapped by keychainGet when the store has no entry.
var errSecretNotFound = errors.New("secret not found")

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that make the server impossible to start.
func (c Config) Validate() error {
	switch c.Inference.Backend {
	case "ollama":
	case "openrouter":
		if c.Proxy.OpenRouterAPIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. "+
				"Set it via environment variable VISNOTE_OPENROUTER_API_KEY%s", secretHint("openrouter_api_key"))
		}
	default:
		return fmt.Errorf("invalid inference.backend %q: want ollama or openrouter", c.Inference.Backend)
	}

	switch c.Archive.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("archive.backend redis requires VISNOTE_REDIS_URL%s", secretHint("redis_url"))
		}
	case "s3":
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("archive.backend s3 requires s3.endpoint and s3.bucket")
		}
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("archive.backend postgres requires VISNOTE_POSTGRES_URL%s", secretHint("postgres_url"))
		}
	default:
		return fmt.Errorf("invalid archive.backend %q: want sqlite, redis, s3, postgres or memory", c.Archive.Backend)
	}

	if _, err := c.InferenceTimeout(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// InferenceTimeout parses inference.timeout.
func (c Config) InferenceTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Inference.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid inference.timeout %q: %w", c.Inference.Timeout, err)
	}
	return d, nil
}

// Location resolves day.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Day.Timezone == "" || strings.EqualFold(c.Day.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Day.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid day.timezone %q: %w", c.Day.Timezone, err)
	}
	return loc, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
