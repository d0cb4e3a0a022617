// Package config resolves datapkg configuration from defaults, the config
// file, a .env file, and the environment.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Dir returns the datapkg config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/datapkg if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "datapkg"), nil
}

// DataDir returns the default per-user data directory, respecting
// XDG_DATA_HOME. Defaults to ~/.local/share/datapkg.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "datapkg"), nil
}

// LoadFile reads the key=value file at {dir}/config. If the file does not
// exist, an empty map is returned without an error. Blank lines, comments
// and malformed lines are skipped.
func LoadFile(dir string) (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(filepath.Join(dir, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return values, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue // no "=" or "=" is first character
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if key == "" || value == "" {
			continue
		}

		values[strings.ToLower(key)] = value
	}

	if err := scanner.Err(); err != nil {
		return values, err
	}

	return values, nil
}
