// Package config loads nexxo.yaml and applies NEXXO_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileNames are the config files looked up in the project root, in order.
var FileNames = []string{"nexxo.yaml", "nexxo.yml"}

// Config holds the resolved project configuration.
type Config struct {
	// Root is the project root. Relative roots are resolved against the
	// directory of the config file.
	Root string `yaml:"root"`
	// OutDir is the build output directory.
	OutDir string `yaml:"outDir"`
	// Entries are the graph entry points, root-relative.
	Entries []string `yaml:"entries"`
	// Mode is "development" or "production".
	Mode string `yaml:"mode"`
	// Define holds compile-time constant replacements.
	Define map[string]string `yaml:"define"`
	// Target is the default runtime affinity of entries.
	Target string `yaml:"target"`

	Resolve ResolveConfig `yaml:"resolve"`
	HMR     HMRConfig     `yaml:"hmr"`
	Cache   CacheConfig   `yaml:"cache"`
	Dev     DevConfig     `yaml:"dev"`
	Engine  EngineConfig  `yaml:"engine"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// ResolveConfig controls module resolution.
type ResolveConfig struct {
	Extensions []string `yaml:"extensions"`
}

// HMRConfig overrides the hot-update classifier's rule sets.
type HMRConfig struct {
	ConfigFiles    []string `yaml:"configFiles"`
	EntryPatterns  []string `yaml:"entryPatterns"`
	SafePatterns   []string `yaml:"safePatterns"`
	SplitThreshold int      `yaml:"splitThreshold"`
	// RulesFile is an optional pathmatch rules file, root-relative.
	RulesFile string `yaml:"rulesFile"`
}

// CacheConfig selects the artifact store.
type CacheConfig struct {
	// Driver is one of sqlite, redis, memory, none.
	Driver   string        `yaml:"driver"`
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redisURL"`
	TTL      time.Duration `yaml:"ttl"`
	// Digests enables the sqlite file digest cache for input fingerprints.
	Digests bool `yaml:"digests"`
}

// DevConfig configures `nexxo dev`.
type DevConfig struct {
	Listen   string        `yaml:"listen"`
	Debounce time.Duration `yaml:"debounce"`
}

// EngineConfig identifies the engine in fingerprints.
type EngineConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Engine defaults, overridable at link time.
var (
	EngineName    = "nexxo"
	EngineVersion = "0.1.0"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Root:    ".",
		OutDir:  "dist",
		Entries: []string{"index.html"},
		Mode:    "development",
		Target:  "universal",
		Cache: CacheConfig{
			Driver: "sqlite",
		},
		Dev: DevConfig{
			Listen:   "127.0.0.1:5173",
			Debounce: 50 * time.Millisecond,
		},
		Engine: EngineConfig{Name: EngineName, Version: EngineVersion},
	}
}

// Load reads path, or discovers a config file in dir when path is empty, then
// applies environment overrides and validates the result.
func Load(path, dir string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Discover(dir)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.Path = path
		if !filepath.IsAbs(cfg.Root) {
			cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
		}
	} else if dir != "" && cfg.Root == "." {
		cfg.Root = dir
	}

	cfg.applyEnv()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	cfg.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover returns the first config file found in dir, or "".
func Discover(dir string) string {
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from NEXXO_* variables.
func (c *Config) applyEnv() {
	c.Root = getEnv("NEXXO_ROOT", c.Root)
	c.OutDir = getEnv("NEXXO_OUT_DIR", c.OutDir)
	c.Mode = getEnv("NEXXO_MODE", c.Mode)
	c.Target = getEnv("NEXXO_TARGET", c.Target)
	if v := os.Getenv("NEXXO_ENTRIES"); v != "" {
		c.Entries = splitList(v)
	}
	c.Cache.Driver = getEnv("NEXXO_CACHE_DRIVER", c.Cache.Driver)
	c.Cache.Path = getEnv("NEXXO_CACHE_PATH", c.Cache.Path)
	c.Cache.RedisURL = getEnv("NEXXO_REDIS_URL", c.Cache.RedisURL)
	c.Cache.TTL = getEnvDuration("NEXXO_CACHE_TTL", c.Cache.TTL)
	c.Cache.Digests = getEnvBool("NEXXO_DIGEST_CACHE", c.Cache.Digests)
	c.Dev.Listen = getEnv("NEXXO_DEV_LISTEN", c.Dev.Listen)
	c.Dev.Debounce = getEnvDuration("NEXXO_DEV_DEBOUNCE", c.Dev.Debounce)
	c.HMR.SplitThreshold = getEnvInt("NEXXO_HMR_SPLIT_THRESHOLD", c.HMR.SplitThreshold)
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("invalid mode %q: want development or production", c.Mode)
	}
	switch c.Target {
	case "client", "server", "edge", "universal":
	default:
		return fmt.Errorf("invalid target %q", c.Target)
	}
	switch c.Cache.Driver {
	case "sqlite", "redis", "memory", "none":
	default:
		return fmt.Errorf("invalid cache driver %q", c.Cache.Driver)
	}
	if len(c.Entries) == 0 {
		return errors.New("no entries configured")
	}
	if c.HMR.SplitThreshold < 0 {
		return fmt.Errorf("invalid hmr split threshold %d", c.HMR.SplitThreshold)
	}
	return nil
}

// AbsOutDir returns the output directory as an absolute path.
func (c *Config) AbsOutDir() string {
	if filepath.IsAbs(c.OutDir) {
		return filepath.Clean(c.OutDir)
	}
	return filepath.Join(c.Root, c.OutDir)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
