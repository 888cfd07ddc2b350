package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/duelr/internal/artifact"
	"github.com/loykin/duelr/internal/env"
	"github.com/loykin/duelr/internal/logger"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides, e.g. DUELR_GAMES=10 or
// DUELR_LOG_LEVEL=debug.
const EnvPrefix = "DUELR"

// DefaultCommand launches a Spring Boot engine jar on a given port.
var DefaultCommand = []string{"java", "-jar", "{artifact}", "--server.port={port}"}

// Config is the whole run configuration. It is loaded once and not modified
// after Resolve.
type Config struct {
	Games           int           `mapstructure:"games"`
	MoveTimeout     time.Duration `mapstructure:"move_timeout"`
	TimeLimit       int           `mapstructure:"time_limit"`
	StartupGrace    time.Duration `mapstructure:"startup_grace"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollFailures int           `mapstructure:"max_poll_failures"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	StopWait        time.Duration `mapstructure:"stop_wait"`
	Verbose         bool          `mapstructure:"verbose"`

	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	UseOSEnv bool     `mapstructure:"use_os_env"`

	Engines []EngineConfig `mapstructure:"engines"`
	Log     LogConfig      `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	History HistoryConfig  `mapstructure:"history"`
	Server  ServerConfig   `mapstructure:"server"`
}

// EngineConfig describes one engine. Exactly one of Artifact and ArtifactDir
// must be set.
type EngineConfig struct {
	Name            string   `mapstructure:"name"`
	Artifact        string   `mapstructure:"artifact"`
	ArtifactDir     string   `mapstructure:"artifact_dir"`
	ArtifactPattern string   `mapstructure:"artifact_pattern"`
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	Command         []string `mapstructure:"command"`
	WorkDir         string   `mapstructure:"workdir"`
	Env             []string `mapstructure:"env"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	NoColor    bool   `mapstructure:"no_color"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Logger converts the section to a logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		NoColor:    l.NoColor,
		Dir:        l.Dir,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Engine is a resolved engine ready to be launched.
type Engine struct {
	Name     string
	Artifact string
	BaseURL  string
	Argv     []string
	WorkDir  string
	Env      []string
}

// New returns a viper instance carrying the defaults and DUELR_* env binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("games", 100)
	v.SetDefault("move_timeout", "3s")
	v.SetDefault("time_limit", 200)
	v.SetDefault("startup_grace", "10s")
	v.SetDefault("ready_timeout", "0s")
	v.SetDefault("poll_interval", "0s")
	v.SetDefault("max_poll_failures", 10)
	v.SetDefault("request_timeout", "5s")
	v.SetDefault("stop_wait", "5s")
	v.SetDefault("verbose", false)
	v.SetDefault("use_os_env", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("history.dsn", "sqlite://duelr-history.db")
	v.SetDefault("server.listen", "127.0.0.1:8090")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes it.
// The file type follows the extension (toml, yaml, json).
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// SetEngine points engine i (0 or 1) at ref, a jar file or a directory to
// search, creating the engine entry if needed. Default ports are 8080 and
// 8082.
func (c *Config) SetEngine(i int, ref string, isDir bool) {
	for len(c.Engines) <= i {
		c.Engines = append(c.Engines, EngineConfig{})
	}
	e := &c.Engines[i]
	if isDir {
		e.ArtifactDir, e.Artifact = ref, ""
	} else {
		e.Artifact, e.ArtifactDir = ref, ""
	}
}

func defaultPort(i int) int { return 8080 + 2*i }

// Validate checks the static constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Games < 1 {
		errs = append(errs, fmt.Errorf("games must be >= 1, got %d", c.Games))
	}
	if c.MoveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("move_timeout must be > 0, got %s", c.MoveTimeout))
	}
	if c.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time_limit must be > 0, got %d", c.TimeLimit))
	}
	if c.MaxPollFailures < 0 {
		errs = append(errs, fmt.Errorf("max_poll_failures must be >= 0, got %d", c.MaxPollFailures))
	}
	if c.StartupGrace < 0 || c.ReadyTimeout < 0 || c.PollInterval < 0 || c.StopWait < 0 || c.RequestTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if len(c.Engines) != 2 {
		errs = append(errs, fmt.Errorf("exactly two engines are required, got %d", len(c.Engines)))
	}
	ports := map[int]bool{}
	for i, e := range c.Engines {
		if (e.Artifact == "") == (e.ArtifactDir == "") {
			errs = append(errs, fmt.Errorf("engine %d: set exactly one of artifact and artifact_dir", i+1))
		}
		port := portOf(e, i)
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("engine %d: port %d out of range", i+1, port))
		}
		if ports[port] {
			errs = append(errs, fmt.Errorf("engine %d: port %d already used", i+1, port))
		}
		ports[port] = true
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.enabled requires history.dsn"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Resolve validates c, locates artifacts and builds the launch description
// of both engines. Identities default to the artifact name without extension;
// equal identities are disambiguated as name@port.
func (c *Config) Resolve() ([]Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	base := env.New(c.UseOSEnv)
	for _, f := range c.EnvFiles {
		if err := base.LoadFile(f); err != nil {
			return nil, err
		}
	}
	base.Set(c.Env)

	out := make([]Engine, len(c.Engines))
	for i, ec := range c.Engines {
		path := ec.Artifact
		if ec.ArtifactDir != "" {
			p, err := artifact.Latest(ec.ArtifactDir, ec.ArtifactPattern)
			if err != nil {
				return nil, fmt.Errorf("engine %d: %w", i+1, err)
			}
			path = p
		}
		host := ec.Host
		if host == "" {
			host = "localhost"
		}
		port := portOf(ec, i)
		name := ec.Name
		if name == "" {
			name = artifact.Identity(path)
		}
		command := ec.Command
		if len(command) == 0 {
			command = DefaultCommand
		}
		argv := make([]string, len(command))
		r := strings.NewReplacer("{artifact}", path, "{port}", strconv.Itoa(port), "{host}", host)
		for j, a := range command {
			argv[j] = r.Replace(a)
		}
		out[i] = Engine{
			Name:     name,
			Artifact: path,
			BaseURL:  "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
			Argv:     argv,
			WorkDir:  ec.WorkDir,
			Env:      base.Merge(ec.Env),
		}
	}
	if out[0].Name == out[1].Name {
		for i := range out {
			out[i].Name = fmt.Sprintf("%s@%d", out[i].Name, portOf(c.Engines[i], i))
		}
	}
	return out, nil
}

func portOf(e EngineConfig, i int) int {
	if e.Port != 0 {
		return e.Port
	}
	return defaultPort(i)
}
