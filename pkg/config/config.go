// Package config handles jjvm.toml / jjvm.yaml run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/daimatz/jjvm/pkg/vm"
)

// FileNames are the configuration file names Find looks for, in order.
var FileNames = []string{"jjvm.toml", "jjvm.yaml", "jjvm.yml"}

// Config holds the settings for one run.
type Config struct {
	// ClassPath lists directories and archives searched for user classes.
	ClassPath []string `toml:"classpath" yaml:"classpath"`
	// Bootstrap is a jmod or jar searched after the host library and before
	// ClassPath.
	Bootstrap  string   `toml:"bootstrap" yaml:"bootstrap"`
	SkipClinit []string `toml:"skip_clinit" yaml:"skip_clinit"`

	MaxFrameDepth int    `toml:"max_frame_depth" yaml:"max_frame_depth"`
	Trace         bool   `toml:"trace" yaml:"trace"`
	Verbosity     int    `toml:"verbosity" yaml:"verbosity"`
	LogFile       string `toml:"log_file" yaml:"log_file"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		MaxFrameDepth: vm.DefaultMaxFrameDepth,
	}
}

// Load reads a configuration file, choosing the decoder by extension.
// Relative class path entries are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	dir := filepath.Dir(c.Path)
	for i, p := range c.ClassPath {
		c.ClassPath[i] = resolve(dir, p)
	}
	if c.Bootstrap != "" {
		c.Bootstrap = resolve(dir, c.Bootstrap)
	}
	if c.MaxFrameDepth <= 0 {
		c.MaxFrameDepth = vm.DefaultMaxFrameDepth
	}
	return c, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Find walks up from startDir to the first directory holding one of
// FileNames and returns its path, or "" if there is none.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", err
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return "", nil
		}
		dir = parent
	}
}

// FindAndLoad loads the configuration found from startDir, or Default if
// there is none.
func FindAndLoad(startDir string) (*Config, error) {
	path, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// FindBootstrap locates a java.base.jmod when none is configured.
func FindBootstrap() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
