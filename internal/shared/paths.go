package shared

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "curator"

// DataPath returns name joined onto $XDG_DATA_HOME/curator.
func DataPath(name string) string {
	return filepath.Join(xdg.DataHome, AppName, name)
}

// ConfigPath returns the default config.toml location under $XDG_CONFIG_HOME/curator.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// StatePath returns name joined onto $XDG_STATE_HOME/curator, used for log files.
func StatePath(name string) string {
	return filepath.Join(xdg.StateHome, AppName, name)
}

// MusicDir returns the user's music directory, used as the default library root.
func MusicDir() string {
	return xdg.UserDirs.Music
}
