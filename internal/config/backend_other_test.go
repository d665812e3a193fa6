//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSettingsFile_TypedRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "visnote", "config.json")

	f, err := openSettingsFile(path)
	if err != nil {
		t.Fatalf("open missing file: %v", err)
	}
	for key, value := range map[string]string{
		"server.port":       "4200",
		"s3.use_ssl":        "false",
		"ollama.text_model": "qwen2",
	} {
		if err := setKey(f, key, value); err != nil {
			t.Fatalf("setKey %s: %v", key, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"server.port": 4200`, `"s3.use_ssl": false`, `"ollama.text_model": "qwen2"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file %s missing %s", data, want)
		}
	}
	assertPrivate(t, path)

	reopened, err := openSettingsFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	cfg, err := loadWith(reopened, &mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.S3.UseSSL || cfg.Ollama.TextModel != "qwen2" {
		t.Errorf("cfg = %+v %+v %+v", cfg.Server, cfg.S3, cfg.Ollama)
	}

	if err := unsetKey(reopened, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if err := unsetKey(reopened, "server.port"); err != nil {
		t.Errorf("unsetting an absent key: %v", err)
	}
}

func assertPrivate(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("%s mode = %v, want 0600", path, perm)
	}
}

func TestSettingsFile_CorruptFileIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	corrupt := []byte(`{"server.port": 4200,`)
	if err := os.WriteFile(path, corrupt, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := openSettingsFile(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("err = %v, want parse error naming the file", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(corrupt) {
		t.Errorf("file changed to %s", data)
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(keychainService, "archive_token"); !errors.Is(err, errSecretNotFound) {
		t.Fatalf("err = %v, want errSecretNotFound", err)
	}

	if err := setSecret(platformSecrets{}, "archive.token", "tok\n"); err != nil {
		t.Fatalf("setSecret: %v", err)
	}
	if err := setSecret(platformSecrets{}, "postgres.url", "postgres://db/visnote"); err != nil {
		t.Fatalf("setSecret: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(newMemBackend(), keychainReader{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Archive.Token != "tok" || cfg.Postgres.URL != "postgres://db/visnote" {
		t.Errorf("Archive.Token = %q, Postgres.URL = %q", cfg.Archive.Token, cfg.Postgres.URL)
	}

	assertPrivate(t, secretsFilePath())
}

func TestSecretsFile_CorruptIsReported(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	if err := os.MkdirAll(filepath.Dir(secretsFilePath()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secretsFilePath(), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := keychainGet(keychainService, "archive_token")
	if err == nil || errors.Is(err, errSecretNotFound) {
		t.Fatalf("err = %v, want a parse error", err)
	}
	if err := keychainSet(keychainService, "archive_token", "x"); err == nil {
		t.Error("keychainSet overwrote an unreadable secrets file")
	}
}
