package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	DefaultLastURL  = "https://www.google.com/"
	DefaultLastHost = "www.google.com"
)

// Settings holds the persisted user preferences.
type Settings struct {
	SaveHistory bool   `json:"save_history"`
	LastURL     string `json:"last_url"`
	LastHost    string `json:"last_host"`
	Theme       string `json:"theme"`

	mu   sync.Mutex
	path string
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() *Settings {
	return &Settings{
		SaveHistory: true,
		LastURL:     DefaultLastURL,
		LastHost:    DefaultLastHost,
		Theme:       "default",
	}
}

// LoadSettings loads settings from the standard config directory.
func LoadSettings() (*Settings, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadSettingsFrom(filepath.Join(dir, "settings.json"))
}

// LoadSettingsFrom loads settings from path, writing defaults when the file
// does not exist. Keys missing from the file keep their default values. An
// unreadable file yields defaults bound to path along with the error; they
// are not written back until something changes.
func LoadSettingsFrom(path string) (*Settings, error) {
	s := DefaultSettings()
	s.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := s.Save(); err != nil {
				return s, err
			}
			return s, nil
		}
		return s, fmt.Errorf("reading settings: %w", err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		s = DefaultSettings()
		s.path = path
		return s, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

// Path returns the file the settings are saved to.
func (s *Settings) Path() string {
	return s.path
}

// Save writes the settings to disk.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Settings) saveLocked() error {
	if s.path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		s.path = filepath.Join(dir, "settings.json")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// SetSaveHistory updates and persists the history-saving toggle.
func (s *Settings) SetSaveHistory(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveHistory = enabled
	return s.saveLocked()
}

// SaveLocation updates and persists the last visited URL and host.
func (s *Settings) SaveLocation(url, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LastURL == url && s.LastHost == host {
		return nil
	}
	s.LastURL = url
	s.LastHost = host
	return s.saveLocked()
}

// SetTheme updates and persists the theme name.
func (s *Settings) SetTheme(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Theme = name
	return s.saveLocked()
}

// DataDir returns the data directory for persistent storage.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "surfshell")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			dir = filepath.Join(appData, "surfshell")
		} else {
			dir = filepath.Join(home, ".surfshell")
		}
	default: // Linux, BSD, etc.
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			dir = filepath.Join(xdgData, "surfshell")
		} else {
			dir = filepath.Join(home, ".local", "share", "surfshell")
		}
	}

	return dir, nil
}

// ConfigDir returns the directory holding settings.json.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "surfshell")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			dir = filepath.Join(appData, "surfshell")
		} else {
			dir = filepath.Join(home, ".surfshell")
		}
	default:
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig != "" {
			dir = filepath.Join(xdgConfig, "surfshell")
		} else {
			dir = filepath.Join(home, ".config", "surfshell")
		}
	}

	return dir, nil
}
