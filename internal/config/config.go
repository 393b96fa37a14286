package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/voidmem/internal/memory"
	"github.com/hpungsan/voidmem/internal/telemetry"
)

// HomeEnv overrides the base directory (default ~/.voidmem).
const HomeEnv = "VOIDMEM_HOME"

// configNames are the file names probed in a config directory, in order.
var configNames = []string{"config.json", "config.yaml", "config.yml"}

// Config holds application configuration.
type Config struct {
	// Store is the logical snapshot store name inside the database.
	Store string `json:"store,omitempty" yaml:"store,omitempty"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for snapshot import/export.
	// Paths outside ~/.voidmem/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" yaml:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// WebBind and WebPort configure the dashboard listener.
	WebBind string `json:"web_bind,omitempty" yaml:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty" yaml:"web_port,omitempty"`

	// SnapshotRetention keeps the newest N snapshots per store on commit. 0 keeps all.
	SnapshotRetention int `json:"snapshot_retention,omitempty" yaml:"snapshot_retention,omitempty"`

	// Autosave commits after every mutating MCP tool call. Nil means true.
	Autosave *bool `json:"autosave,omitempty" yaml:"autosave,omitempty"`

	// Memory tunes the manager. Zero fields fall back to defaults.
	Memory memory.Params `json:"memory" yaml:"memory"`

	// Telemetry holds anomaly thresholds. Zero fields fall back to defaults.
	Telemetry telemetry.Thresholds `json:"telemetry" yaml:"telemetry"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	autosave := true
	return &Config{
		Store:             "default",
		LogLevel:          "info",
		WebBind:           "127.0.0.1",
		WebPort:           7878,
		SnapshotRetention: 20,
		Autosave:          &autosave,
		Memory:            memory.DefaultParams(),
		Telemetry:         telemetry.DefaultThresholds(),
	}
}

// BaseDir returns $VOIDMEM_HOME, or ~/.voidmem.
func BaseDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".voidmem"), nil
}

// AutosaveEnabled reports whether mutating tool calls commit.
func (c *Config) AutosaveEnabled() bool {
	return c.Autosave == nil || *c.Autosave
}

// Params returns validated manager tuning.
func (c *Config) Params() (memory.Params, error) {
	p := memory.DefaultParams()
	overlayNonZero(&p, &c.Memory)
	if err := p.Validate(); err != nil {
		return memory.Params{}, err
	}
	return p, nil
}

// Thresholds returns anomaly thresholds with zero fields defaulted.
func (c *Config) Thresholds() telemetry.Thresholds {
	th := telemetry.DefaultThresholds()
	overlayNonZero(&th, &c.Telemetry)
	return th
}

// Load loads configuration from baseDir/config.{json,yaml,yml}.
// Returns default config if no file exists.
func Load(baseDir string) (*Config, error) {
	return loadFile(findConfigIn(baseDir))
}

// LoadWithRepo loads configuration from both global (~/.voidmem) and repo (.voidmem) directories.
// Repo config is found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(findConfigIn(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .voidmem/config file.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		if path := findConfigIn(filepath.Join(dir, ".voidmem")); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// findConfigIn returns the first config file present in dir, or "".
func findConfigIn(dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path, choosing the
// decoder by extension. Returns zero-valued config if the path is empty or
// the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}
	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Store = firstString(overlay.Store, base.Store)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.WebBind = firstString(overlay.WebBind, base.WebBind)
	result.WebPort = firstInt(overlay.WebPort, base.WebPort)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.SnapshotRetention = firstInt(overlay.SnapshotRetention, base.SnapshotRetention)

	result.Autosave = base.Autosave
	if overlay.Autosave != nil {
		result.Autosave = overlay.Autosave
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	// Nested tuning: field by field, non-zero overlay wins
	result.Memory = base.Memory
	overlayNonZero(&result.Memory, &overlay.Memory)
	result.Telemetry = base.Telemetry
	overlayNonZero(&result.Telemetry, &overlay.Telemetry)

	return result
}

// overlayNonZero copies every non-zero field of src onto dst. Both must be
// pointers to the same struct type.
func overlayNonZero(dst, src any) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for i := 0; i < sv.NumField(); i++ {
		if f := sv.Field(i); !f.IsZero() {
			dv.Field(i).Set(f)
		}
	}
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
