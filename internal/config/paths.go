package config

import (
	"os"
	"path/filepath"
)

// Paths contains the default file locations of an agent installation.
type Paths struct {
	Home    string // Agent home directory
	Config  string // YAML configuration file
	Env     string // Optional dotenv file with overrides
	Journal string // SQLite task journal
	Logs    string // Logs directory
}

// GetPaths returns the default layout below GetBoofiHome.
func GetPaths() Paths {
	home := GetBoofiHome()
	return Paths{
		Home:    home,
		Config:  filepath.Join(home, "config.yaml"),
		Env:     filepath.Join(home, ".env"),
		Journal: filepath.Join(home, "journal.db"),
		Logs:    filepath.Join(home, "logs"),
	}
}

// GetBoofiHome returns the agent home directory (~/.boofi).
func GetBoofiHome() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".boofi")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the home and logs directories if they do not exist.
func EnsureDirs() (Paths, error) {
	paths := GetPaths()
	for _, dir := range []string{paths.Home, paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
