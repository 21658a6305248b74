package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gogpu/overlay/internal/bridge"
	"github.com/mitchellh/go-homedir"
)

// PathConfig tells /paths where the application lives.
type PathConfig struct {
	// AppName names the per-user data directories.
	AppName string
	// AppDir is the installation directory. Defaults to the executable's
	// directory.
	AppDir string
	// ProjectDir is the working project. Defaults to the working directory.
	ProjectDir string

	// Getenv and Home are overridable for tests. Defaults are os.Getenv and
	// homedir.Dir.
	Getenv func(string) string
	Home   func() (string, error)
	GOOS   string
}

func (c PathConfig) withDefaults() PathConfig {
	if c.AppName == "" {
		c.AppName = "overlay"
	}
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}
	if c.Home == nil {
		c.Home = homedir.Dir
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
	if c.AppDir == "" {
		if exe, err := os.Executable(); err == nil {
			c.AppDir = filepath.Dir(exe)
		}
	}
	if c.ProjectDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.ProjectDir = wd
		}
	}
	return c
}

// xdgUserDirs maps /paths names to their XDG variable and home fallback.
var xdgUserDirs = map[string][2]string{
	"documents": {"XDG_DOCUMENTS_DIR", "Documents"},
	"downloads": {"XDG_DOWNLOAD_DIR", "Downloads"},
	"desktop":   {"XDG_DESKTOP_DIR", "Desktop"},
	"pictures":  {"XDG_PICTURES_DIR", "Pictures"},
	"music":     {"XDG_MUSIC_DIR", "Music"},
	"videos":    {"XDG_VIDEOS_DIR", "Videos"},
}

// Resolve returns the host path for name.
func (c PathConfig) Resolve(name string) (string, error) {
	c = c.withDefaults()

	switch name {
	case "app":
		return c.AppDir, nil
	case "project":
		return c.ProjectDir, nil
	case "home":
		return c.Home()
	case "appData":
		return c.appData()
	case "userData":
		dir, err := c.appData()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, c.AppName), nil
	case "localAppData":
		return c.localAppData()
	case "localUserData":
		dir, err := c.localAppData()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, c.AppName), nil
	case "temp":
		return os.TempDir(), nil
	}

	if xdg, ok := xdgUserDirs[name]; ok {
		if v := c.Getenv(xdg[0]); v != "" && c.GOOS != "windows" && c.GOOS != "darwin" {
			return v, nil
		}
		home, err := c.Home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, xdg[1]), nil
	}
	return "", fmt.Errorf("unknown path name %q", name)
}

func (c PathConfig) appData() (string, error) {
	switch c.GOOS {
	case "windows":
		if v := c.Getenv("APPDATA"); v != "" {
			return v, nil
		}
	case "darwin":
		home, err := c.Home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if v := c.Getenv("XDG_CONFIG_HOME"); v != "" {
			return v, nil
		}
	}
	home, err := c.Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// localAppData prefers LOCALAPPDATA, then XDG_DATA_HOME, then appData.
func (c PathConfig) localAppData() (string, error) {
	if v := c.Getenv("LOCALAPPDATA"); v != "" {
		return v, nil
	}
	if v := c.Getenv("XDG_DATA_HOME"); v != "" {
		return v, nil
	}
	return c.appData()
}

type nameBody struct {
	Name *string `json:"name"`
}

func (h *host) paths(_ context.Context, req *bridge.Request) (any, error) {
	b, err := bind[nameBody](req)
	if err != nil {
		return nil, err
	}
	name, err := required("name", b.Name)
	if err != nil {
		return nil, err
	}
	return h.deps.Paths.Resolve(name)
}
