package utils

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user config directory.
const AppName = "mentionserve"

// ConfigDirCandidates lists the config directories to try, best first:
// $XDG_CONFIG_HOME or ~/.config, then the platform location, then the
// directory of the executable.
func ConfigDirCandidates() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", AppName))
		switch runtime.GOOS {
		case "darwin":
			dirs = append(dirs, filepath.Join(home, "Library", "Application Support", AppName))
		case "windows":
			if appData := os.Getenv("APPDATA"); appData != "" {
				dirs = append(dirs, filepath.Join(appData, AppName))
			}
		}
	}
	if exe, err := GetExecutableDir(); err == nil {
		dirs = append(dirs, exe)
	}
	return dirs
}

// GetExecutableDir returns the directory of the running binary with symlinks
// resolved.
func GetExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// ResolveRelative resolves p against the directory of base unless p is
// empty or absolute. Used for paths written inside config files.
func ResolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(filepath.Dir(base), p)
}
