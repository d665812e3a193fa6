package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names a secret in the platform secret store. Secrets without
	// one come only from the environment.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VISNOTE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "VISNOTE_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "inference.backend", typ: kString, env: "VISNOTE_INFERENCE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Inference.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Backend },
	},
	{
		key: "inference.timeout", typ: kString, env: "VISNOTE_INFERENCE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Inference.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "VISNOTE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.vision_model", typ: kString, env: "VISNOTE_OLLAMA_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.VisionModel },
	},
	{
		key: "ollama.text_model", typ: kString, env: "VISNOTE_OLLAMA_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.TextModel },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "VISNOTE_OPENROUTER_API_KEY",
		secret: true, account: "openrouter_api_key",
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.vision_model", typ: kString, env: "VISNOTE_PROXY_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.VisionModel },
	},
	{
		key: "proxy.text_model", typ: kString, env: "VISNOTE_PROXY_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.TextModel },
	},
	{
		key: "archive.backend", typ: kString, env: "VISNOTE_ARCHIVE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Archive.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Backend },
	},
	{
		key: "archive.name", typ: kString, env: "VISNOTE_ARCHIVE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Archive.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Name },
	},
	{
		key: "archive.max_bytes", typ: kInt, env: "VISNOTE_ARCHIVE_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Archive.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Archive.MaxBytes },
	},
	{
		key: "archive.token", typ: kString, env: "VISNOTE_ARCHIVE_TOKEN",
		secret: true, account: "archive_token",
		apply:   func(cfg *Config, v any) { cfg.Archive.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Token },
	},
	{
		key: "archive.token_hash", typ: kString, env: "VISNOTE_ARCHIVE_TOKEN_HASH",
		apply:   func(cfg *Config, v any) { cfg.Archive.TokenHash = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.TokenHash },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VISNOTE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "redis.url", typ: kString, env: "VISNOTE_REDIS_URL",
		secret: true, account: "redis_url",
		apply:   func(cfg *Config, v any) { cfg.Redis.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.URL },
	},
	{
		key: "s3.endpoint", typ: kString, env: "VISNOTE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.S3.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Endpoint },
	},
	{
		key: "s3.bucket", typ: kString, env: "VISNOTE_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.S3.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Bucket },
	},
	{
		key: "s3.access_key", typ: kString, env: "VISNOTE_S3_ACCESS_KEY",
		apply:   func(cfg *Config, v any) { cfg.S3.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.AccessKey },
	},
	{
		key: "s3.secret_key", typ: kString, env: "VISNOTE_S3_SECRET_KEY",
		secret: true, account: "s3_secret_key",
		apply:   func(cfg *Config, v any) { cfg.S3.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.SecretKey },
	},
	{
		key: "s3.use_ssl", typ: kBool, env: "VISNOTE_S3_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.S3.UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.S3.UseSSL },
	},
	{
		key: "postgres.url", typ: kString, env: "VISNOTE_POSTGRES_URL",
		secret: true, account: "postgres_url",
		apply:   func(cfg *Config, v any) { cfg.Postgres.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Postgres.URL },
	},
	{
		key: "day.timezone", typ: kString, env: "VISNOTE_DAY_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Day.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Day.Timezone },
	},
	{
		key: "log.level", typ: kString, env: "VISNOTE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		v, err := coerce(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] config key %s=%v: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

// applySecrets fills secrets still empty after the environment from the
// platform secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if s.account == "" || s.extract(*cfg) != "" {
			continue
		}
		v, err := kc.Get(keychainService, s.account)
		switch {
		case err == nil && v != "":
			s.apply(cfg, v)
		case err != nil && !errors.Is(err, errSecretNotFound):
			fmt.Fprintf(os.Stderr, "[WARN] reading secret %s: %v\n", s.key, err)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("not an integer: %w", err)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("not a bool: %w", err)
		}
		return b, nil
	}
	return raw, nil
}
