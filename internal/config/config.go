// Package config loads the controller configuration with Viper. Values come
// from built-in defaults, an optional YAML file and SELFUPDATE_* environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment variable, e.g.
	// SELFUPDATE_RESTART_MODE for restart.mode.
	EnvPrefix = "SELFUPDATE"

	DefaultCommandTimeout = 300 * time.Second
	DefaultReleaseTimeout = 15 * time.Second
	DefaultChangelogLines = 80
	DefaultLogTailLines   = 40
)

type Config struct {
	RepoRoot       string        `mapstructure:"repo_root" yaml:"repo_root"`
	Branch         string        `mapstructure:"branch" yaml:"branch"`
	Remote         string        `mapstructure:"remote" yaml:"remote"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	StatePath      string        `mapstructure:"state_path" yaml:"state_path"`
	LogPath        string        `mapstructure:"log_path" yaml:"log_path"`
	HistoryPath    string        `mapstructure:"history_path" yaml:"history_path"`
	SnapshotDir    string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	LogTailLines   int           `mapstructure:"log_tail_lines" yaml:"log_tail_lines"`

	Changelog ChangelogConfig `mapstructure:"changelog" yaml:"changelog"`
	Release   ReleaseConfig   `mapstructure:"release" yaml:"release"`
	Restart   RestartConfig   `mapstructure:"restart" yaml:"restart"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
}

type ChangelogConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	MaxLines int    `mapstructure:"max_lines" yaml:"max_lines"`
}

type ReleaseConfig struct {
	// Repo is the "owner/repo" identifier on GitHub.
	Repo    string        `mapstructure:"repo" yaml:"repo"`
	Token   string        `mapstructure:"token" yaml:"token,omitempty"`
	APIURL  string        `mapstructure:"api_url" yaml:"api_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RestartConfig struct {
	Mode           string `mapstructure:"mode" yaml:"mode"`
	Unit           string `mapstructure:"unit" yaml:"unit"`
	ComposeFile    string `mapstructure:"compose_file" yaml:"compose_file"`
	ComposeService string `mapstructure:"compose_service" yaml:"compose_service"`
	ComposeVerify  bool   `mapstructure:"compose_verify" yaml:"compose_verify"`
	Process        string `mapstructure:"process" yaml:"process"`
	CustomCommand  string `mapstructure:"custom_command" yaml:"custom_command"`
}

type HTTPConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		RepoRoot:       ".",
		Remote:         "origin",
		CommandTimeout: DefaultCommandTimeout,
		StatePath:      filepath.Join("data", "update_state.json"),
		LogPath:        filepath.Join("data", "logs", "update.log"),
		HistoryPath:    filepath.Join("data", "deployments.db"),
		SnapshotDir:    filepath.Join("data", "snapshots"),
		LogTailLines:   DefaultLogTailLines,
		Changelog: ChangelogConfig{
			Path:     "CHANGELOG.md",
			MaxLines: DefaultChangelogLines,
		},
		Release: ReleaseConfig{
			Timeout: DefaultReleaseTimeout,
		},
		Restart: RestartConfig{
			Mode:    "none",
			Process: "all",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the configuration. An empty path skips the file; a path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("repo_root", d.RepoRoot)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("remote", d.Remote)
	v.SetDefault("command_timeout", d.CommandTimeout)
	v.SetDefault("state_path", d.StatePath)
	v.SetDefault("log_path", d.LogPath)
	v.SetDefault("history_path", d.HistoryPath)
	v.SetDefault("snapshot_dir", d.SnapshotDir)
	v.SetDefault("log_tail_lines", d.LogTailLines)
	v.SetDefault("changelog.path", d.Changelog.Path)
	v.SetDefault("changelog.max_lines", d.Changelog.MaxLines)
	v.SetDefault("release.repo", d.Release.Repo)
	v.SetDefault("release.token", d.Release.Token)
	v.SetDefault("release.api_url", d.Release.APIURL)
	v.SetDefault("release.timeout", d.Release.Timeout)
	v.SetDefault("restart.mode", d.Restart.Mode)
	v.SetDefault("restart.unit", d.Restart.Unit)
	v.SetDefault("restart.compose_file", d.Restart.ComposeFile)
	v.SetDefault("restart.compose_service", d.Restart.ComposeService)
	v.SetDefault("restart.compose_verify", d.Restart.ComposeVerify)
	v.SetDefault("restart.process", d.Restart.Process)
	v.SetDefault("restart.custom_command", d.Restart.CustomCommand)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.token", d.HTTP.Token)
}

// resolvePaths makes RepoRoot absolute and anchors the data paths to it.
func (c *Config) resolvePaths() error {
	root, err := filepath.Abs(c.RepoRoot)
	if err != nil {
		return fmt.Errorf("resolve repo_root: %w", err)
	}
	c.RepoRoot = root
	c.StatePath = c.anchor(c.StatePath)
	c.LogPath = c.anchor(c.LogPath)
	if c.HistoryPath != ":memory:" {
		c.HistoryPath = c.anchor(c.HistoryPath)
	}
	c.SnapshotDir = c.anchor(c.SnapshotDir)
	c.Changelog.Path = c.anchor(c.Changelog.Path)
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.Release.Timeout <= 0 {
		c.Release.Timeout = DefaultReleaseTimeout
	}
	if c.Remote == "" {
		c.Remote = "origin"
	}
	return nil
}

// anchor resolves p against RepoRoot. Empty stays empty.
func (c *Config) anchor(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RepoRoot, p)
}
