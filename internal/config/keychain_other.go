//go:build !darwin

package config

import (
	"fmt"
	"path/filepath"
)

// secretsFilePath holds secrets keyed by service, then account:
//
//	{"visnote": {"archive_token": "...", "redis_url": "..."}}
func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

type secretsFile map[string]map[string]string

func readSecrets() (secretsFile, error) {
	var secrets secretsFile
	if err := readJSONFile(secretsFilePath(), &secrets); err != nil {
		return nil, fmt.Errorf("secrets file %s: %w", secretsFilePath(), err)
	}
	if secrets == nil {
		secrets = make(secretsFile)
	}
	return secrets, nil
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets()
	if err != nil {
		return nil, err
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", service, account, errSecretNotFound)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	secrets, err := readSecrets()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value
	return writePrivateFile(secretsFilePath(), secrets)
}
