package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the platform backend.
func SetKey(key, value string) error {
	b, err := newPlatformBackend()
	if err != nil {
		return err
	}
	return setKey(b, key, value)
}

func setKey(b Backend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use `visnote config set-secret %s` or environment variable %s", key, key, s.env)
	}
	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", s.typ, key, err)
	}
	return b.Set(key, v)
}

// UnsetKey removes a key from the platform backend so its default applies again.
func UnsetKey(key string) error {
	b, err := newPlatformBackend()
	if err != nil {
		return err
	}
	return unsetKey(b, key)
}

func unsetKey(b Backend, key string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("secret %q is not stored in the config backend", key)
	}
	return b.Delete(key)
}

// SetSecret stores a secret key in the platform secret store, under the
// account its spec names.
func SetSecret(key, value string) error {
	return setSecret(platformSecrets{}, key, value)
}

func setSecret(store secretStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if !s.secret {
		return fmt.Errorf("%q is not a secret; use `visnote config set`", key)
	}
	if s.account == "" {
		return fmt.Errorf("secret %q is read only from environment variable %s", key, s.env)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty value for %s", key)
	}
	return store.Set(keychainService, s.account, value)
}

// SecretKeys returns the secrets SetSecret accepts.
func SecretKeys() []string {
	var keys []string
	for _, s := range specs {
		if s.account != "" {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// secretStore reads and writes secrets; the platform keychain in production.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type platformSecrets struct{ keychainReader }

func (platformSecrets) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the local HTTP API, creating
// and storing a random one on first use. VISNOTE_API_TOKEN overrides it.
func GetAPIToken() (string, error) {
	return apiToken(platformSecrets{}, os.Getenv("VISNOTE_API_TOKEN"))
}

func apiToken(store secretStore, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if tok, err := store.Get(keychainService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := store.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
