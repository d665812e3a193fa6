//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "visnote-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "visnote")
}

func secretHint(account string) string {
	return fmt.Sprintf(" or the %q entry of the secrets file at %s", account, secretsFilePath())
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "visnote", "config.json")
}

func newPlatformBackend() (Backend, error) {
	return openSettingsFile(configFilePath())
}

// settingsFile keeps settings as one flat JSON object. Ints and bools are
// stored as JSON numbers and bools.
type settingsFile struct {
	path   string
	values map[string]any
}

// openSettingsFile loads path. A missing file is empty; a file that cannot be
// parsed is an error so that a later Set does not overwrite it.
func openSettingsFile(path string) (*settingsFile, error) {
	f := &settingsFile{path: path}
	if err := readJSONFile(path, &f.values); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if f.values == nil {
		f.values = make(map[string]any)
	}
	return f, nil
}

func (f *settingsFile) Get(key string) (any, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *settingsFile) Set(key string, val any) error {
	f.values[key] = val
	return writePrivateFile(f.path, f.values)
}

func (f *settingsFile) Delete(key string) error {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return writePrivateFile(f.path, f.values)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	return nil
}

// writePrivateFile replaces path with v as indented JSON, readable only by
// the owner. The rename keeps readers from seeing a partial file.
func writePrivateFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
