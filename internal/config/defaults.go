package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// AppName names every platform directory.
const AppName = "scrivener"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/scrivener/
//   - Linux:   $XDG_DATA_HOME/scrivener/ or ~/.local/share/scrivener/
//
// Falls back to ~/.scrivener elsewhere.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", AppName)
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		return filepath.Join(homeDir(), ".local", "share", AppName)
	default:
		return fallbackDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/scrivener/
//   - Linux:   $XDG_CONFIG_HOME/scrivener/ or ~/.config/scrivener/
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDataDir()
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		return filepath.Join(homeDir(), ".config", AppName)
	default:
		return fallbackDir()
	}
}

// PlatformRuntimeDir returns the directory for the daemon socket.
//
// Platform paths:
//   - macOS:   /tmp/scrivener-$UID/
//   - Linux:   $XDG_RUNTIME_DIR/scrivener/ or /tmp/scrivener-$UID/
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
	}
	return filepath.Join(os.TempDir(), AppName+"-"+strconv.Itoa(os.Getuid()))
}

// DataDir returns the data directory, honouring SCRIVENER_DATA_DIR.
func DataDir() string {
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		return v
	}
	return PlatformDataDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		return v
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DefaultPaths groups every default path.
type DefaultPaths struct {
	DataDir    string
	ConfigDir  string
	RuntimeDir string

	ConfigFile  string
	JournalFile string
	SocketPath  string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	data := DataDir()
	rt := PlatformRuntimeDir()
	return &DefaultPaths{
		DataDir:     data,
		ConfigDir:   PlatformConfigDir(),
		RuntimeDir:  rt,
		ConfigFile:  ConfigPath(),
		JournalFile: filepath.Join(data, "journal.db"),
		SocketPath:  filepath.Join(rt, AppName+".sock"),
	}
}

// SupportedConfigFormats lists the file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile returns the first existing config file in the config
// directory, or "".
func FindConfigFile() string {
	dir := PlatformConfigDir()
	for _, ext := range SupportedConfigFormats() {
		p := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}

func fallbackDir() string {
	return filepath.Join(homeDir(), "."+AppName)
}
