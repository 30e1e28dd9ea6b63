package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	ConfigFileName         = ".sparxel.toml"
	DefaultManifestFile    = "package.json"
	DefaultSetupKey        = "xhiSetupMatrix"
	DefaultDependencyRoot  = "node_modules"
	DefaultRuntimeCommand  = "node"
	DefaultMinRuntimeMajor = 8
	DefaultHookName        = "pre-commit"
	DefaultHookLinkTarget  = "../../bin/git-hook_pre-commit"
	DefaultStageTimeout    = 5 * time.Minute
)

// SetupKeyAliases are alternate names accepted for the setup section when
// the configured key is absent from the manifest.
var SetupKeyAliases = []string{"xhi_010_SetupMatrix"}

// DefaultTools are the executables every run must resolve before touching disk
var DefaultTools = []string{"git", "patch"}

// Duration wraps time.Duration so it can be written as "90s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ConfigFile represents the TOML config file structure
type ConfigFile struct {
	ManifestFile    string    `toml:"manifest_file,omitempty"`
	SetupKey        string    `toml:"setup_key,omitempty"`
	DependencyRoot  string    `toml:"dependency_root,omitempty"`
	RuntimeCommand  *string   `toml:"runtime_command,omitempty"`
	MinRuntimeMajor int       `toml:"min_runtime_major,omitempty"`
	Tools           []string  `toml:"tools,omitempty"`
	HookName        string    `toml:"hook_name,omitempty"`
	HookLinkTarget  string    `toml:"hook_link_target,omitempty"`
	StageTimeout    *Duration `toml:"stage_timeout,omitempty"`
}

// Config holds the runtime configuration for one project
type Config struct {
	ProjectDir      string // Absolute project root; every other path is relative to it
	ConfigPath      string
	ManifestFile    string
	SetupKey        string
	DependencyRoot  string
	RuntimeCommand  string // Empty disables the runtime version check
	MinRuntimeMajor int
	Tools           []string
	HookName        string
	HookLinkTarget  string // Symlink content, relative to the hooks directory
	StageTimeout    time.Duration
}

// ExpandPath expands ~ to home directory in a path
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// Defaults returns the built-in configuration rooted at projectDir
func Defaults(projectDir string) *Config {
	tools := make([]string, len(DefaultTools))
	copy(tools, DefaultTools)

	return &Config{
		ProjectDir:      projectDir,
		ConfigPath:      filepath.Join(projectDir, ConfigFileName),
		ManifestFile:    DefaultManifestFile,
		SetupKey:        DefaultSetupKey,
		DependencyRoot:  DefaultDependencyRoot,
		RuntimeCommand:  DefaultRuntimeCommand,
		MinRuntimeMajor: DefaultMinRuntimeMajor,
		Tools:           tools,
		HookName:        DefaultHookName,
		HookLinkTarget:  DefaultHookLinkTarget,
		StageTimeout:    DefaultStageTimeout,
	}
}

// ForProject resolves projectDir and loads its config file over the defaults.
// A missing config file is not an error.
func ForProject(projectDir string) (*Config, error) {
	expanded, err := ExpandPath(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand project path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	cfg := Defaults(abs)
	if err := cfg.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.ConfigPath, err)
	}
	return cfg, nil
}

// Load reads the config from disk
func (c *Config) Load() error {
	var cf ConfigFile
	if _, err := toml.DecodeFile(c.ConfigPath, &cf); err != nil {
		return err
	}

	if cf.ManifestFile != "" {
		c.ManifestFile = cf.ManifestFile
	}
	if cf.SetupKey != "" {
		c.SetupKey = cf.SetupKey
	}
	if cf.DependencyRoot != "" {
		c.DependencyRoot = cf.DependencyRoot
	}
	// An explicit empty string turns the runtime check off
	if cf.RuntimeCommand != nil {
		c.RuntimeCommand = *cf.RuntimeCommand
	}
	if cf.MinRuntimeMajor > 0 {
		c.MinRuntimeMajor = cf.MinRuntimeMajor
	}
	if len(cf.Tools) > 0 {
		c.Tools = cf.Tools
	}
	if cf.HookName != "" {
		c.HookName = cf.HookName
	}
	if cf.HookLinkTarget != "" {
		c.HookLinkTarget = cf.HookLinkTarget
	}
	if cf.StageTimeout != nil {
		c.StageTimeout = cf.StageTimeout.Duration
	}

	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	runtimeCommand := c.RuntimeCommand
	cf := ConfigFile{
		ManifestFile:    c.ManifestFile,
		SetupKey:        c.SetupKey,
		DependencyRoot:  c.DependencyRoot,
		RuntimeCommand:  &runtimeCommand,
		MinRuntimeMajor: c.MinRuntimeMajor,
		Tools:           c.Tools,
		HookName:        c.HookName,
		HookLinkTarget:  c.HookLinkTarget,
		StageTimeout:    &Duration{c.StageTimeout},
	}

	f, err := os.Create(c.ConfigPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cf)
}

// ManifestPath returns the absolute manifest location
func (c *Config) ManifestPath() string {
	return c.Resolve(c.ManifestFile)
}

// DependencyDir returns the absolute directory holding installed packages
func (c *Config) DependencyDir() string {
	return c.Resolve(c.DependencyRoot)
}

// GitDir returns the version-control metadata directory
func (c *Config) GitDir() string {
	return filepath.Join(c.ProjectDir, ".git")
}

// HookPath returns the absolute location of the managed commit hook
func (c *Config) HookPath() string {
	return filepath.Join(c.GitDir(), "hooks", c.HookName)
}

// Resolve joins a project-relative path onto the project root.
// Absolute paths are returned cleaned but otherwise unchanged.
func (c *Config) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(c.ProjectDir, filepath.FromSlash(rel))
}

// Rel returns path relative to the project root for display, falling back
// to the input when it lies outside the project.
func (c *Config) Rel(path string) string {
	rel, err := filepath.Rel(c.ProjectDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
