package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.roomchat, or $ROOMCHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("ROOMCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".roomchat")
}

// ProfilesDir returns the directory holding every profile.
func ProfilesDir() string {
	return filepath.Join(BaseDir(), "profiles")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(ProfilesDir(), name)
}

// SocketPath returns the UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the profile's roomchat.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "roomchat.db")
}

// ProfileConfigPath returns the profile's config.toml.
func ProfileConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "roomchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of existing profile directories.
func List() ([]string, error) {
	entries, err := os.ReadDir(ProfilesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
