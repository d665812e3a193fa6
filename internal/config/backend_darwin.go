//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.visnote.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "visnote")
	}
	return "visnote-data"
}

func secretHint(account string) string {
	return fmt.Sprintf(" or macOS Keychain (service: %s, account: %s)", keychainService, account)
}

// defaultsBackend keeps settings in a UserDefaults domain through defaults(1).
// Values are written with the type flag matching the key so other tools
// reading the domain see integers and bools, not strings.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() (Backend, error) {
	return &defaultsBackend{domain: defaultsDomain}, nil
}

func (b *defaultsBackend) Get(key string) (any, bool, error) {
	out, err := exec.Command("defaults", "read", b.domain, key).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("defaults read %s: %w: %s", key, err, s)
	}
	// Bools read back as 1 or 0; parseValue accepts both.
	return s, true, nil
}

func (b *defaultsBackend) Set(key string, val any) error {
	var flag, text string
	switch v := val.(type) {
	case int:
		flag, text = "-int", strconv.Itoa(v)
	case bool:
		flag, text = "-bool", strconv.FormatBool(v)
	case string:
		flag, text = "-string", v
	default:
		return fmt.Errorf("unsupported value %T for %s", val, key)
	}
	return b.run("write", key, flag, text)
}

func (b *defaultsBackend) Delete(key string) error {
	if _, ok, err := b.Get(key); err == nil && !ok {
		return nil
	}
	return b.run("delete", key)
}

func (b *defaultsBackend) run(verb string, args ...string) error {
	out, err := exec.Command("defaults", append([]string{verb, b.domain}, args...)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("defaults %s %s: %w: %s", verb, args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
