// Package config handles octo-runner configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Command-line flags bound by the CLI
//  2. Environment variables (OCTO_RUNNER_*)
//  3. Config file (~/.config/octo-runner/config.yaml)
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/harshul/octo-runner/internal/ports"
)

const (
	// DefaultExecTimeout bounds one-shot commands.
	DefaultExecTimeout = 60 * time.Second
	// DefaultMaxOutput caps the combined output kept from a command.
	DefaultMaxOutput = 10 * 1024 * 1024
	// DefaultSettle is how long a freshly spawned server runs before its
	// startup output is summarized.
	DefaultSettle = 4 * time.Second
	// DefaultInstallTimeout bounds a single dependency install.
	DefaultInstallTimeout = 2 * time.Minute
	// DefaultValidateTimeout bounds page validation.
	DefaultValidateTimeout = 15 * time.Second
	// DefaultProbeDelay is the wait between navigation and the DOM probe.
	DefaultProbeDelay = 2 * time.Second
)

// Config holds the octo-runner configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources. configFile overrides the
// default location when non-empty.
func Load(configFile string) *Config {
	v := viper.New()

	v.SetDefault("ports.dev", ports.DevPort)
	v.SetDefault("ports.preview", ports.PreviewPort)
	v.SetDefault("ports.app", ports.AppPort)
	v.SetDefault("ports.reap_settle", ports.DefaultSettle)
	v.SetDefault("exec.timeout", DefaultExecTimeout)
	v.SetDefault("exec.max_output", DefaultMaxOutput)
	v.SetDefault("server.settle", DefaultSettle)
	v.SetDefault("server.restart_on_crash", false)
	v.SetDefault("server.log_dir", defaultServerLogDir())
	v.SetDefault("fixer.install_timeout", DefaultInstallTimeout)
	v.SetDefault("validate.timeout", DefaultValidateTimeout)
	v.SetDefault("validate.probe_delay", DefaultProbeDelay)
	v.SetDefault("app.root", defaultAppRoot())
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("browser.path", "")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("dotenv", true)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if dir := Dir(); dir != "" {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OCTO_RUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Dir returns ~/.config/octo-runner, or "" when there is no home directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "octo-runner")
}

// defaultAppRoot is the directory holding this executable
func defaultAppRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// defaultServerLogDir keeps server logs under the user cache directory
func defaultServerLogDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "octo-runner", "servers")
	}
	return filepath.Join(os.TempDir(), "octo-runner", "servers")
}

// Viper exposes the underlying store so the CLI can bind flags.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// Set overrides a value for this process.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// DevPort returns the canonical dev-server port.
func (c *Config) DevPort() int { return c.v.GetInt("ports.dev") }

// PreviewPort returns the canonical preview-server port.
func (c *Config) PreviewPort() int { return c.v.GetInt("ports.preview") }

// AppPort returns the port of this application's own UI server.
func (c *Config) AppPort() int { return c.v.GetInt("ports.app") }

// ReapSettle returns how long to wait after killing a port's listeners.
func (c *Config) ReapSettle() time.Duration { return c.v.GetDuration("ports.reap_settle") }

// ExecTimeout returns the one-shot command timeout.
func (c *Config) ExecTimeout() time.Duration { return c.v.GetDuration("exec.timeout") }

// MaxOutput returns the output cap in bytes.
func (c *Config) MaxOutput() int { return c.v.GetInt("exec.max_output") }

// Settle returns the server startup settle interval.
func (c *Config) Settle() time.Duration { return c.v.GetDuration("server.settle") }

// RestartOnCrash reports whether a dev server that exits on its own is restarted once.
func (c *Config) RestartOnCrash() bool { return c.v.GetBool("server.restart_on_crash") }

// ServerLogDir is where detached servers write their output
func (c *Config) ServerLogDir() string { return c.v.GetString("server.log_dir") }

// InstallTimeout returns the dependency install timeout.
func (c *Config) InstallTimeout() time.Duration { return c.v.GetDuration("fixer.install_timeout") }

// ValidateTimeout returns the default page validation timeout.
func (c *Config) ValidateTimeout() time.Duration { return c.v.GetDuration("validate.timeout") }

// ProbeDelay returns the wait before the DOM probe runs.
func (c *Config) ProbeDelay() time.Duration { return c.v.GetDuration("validate.probe_delay") }

// AppRoot returns this application's install root.
func (c *Config) AppRoot() string { return c.v.GetString("app.root") }

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string { return c.v.GetString("log.level") }

// LogFormat returns the configured log format.
func (c *Config) LogFormat() string { return c.v.GetString("log.format") }

// LogFile returns the configured log file, if any.
func (c *Config) LogFile() string { return c.v.GetString("log.file") }

// BrowserPath returns an explicit browser executable, if configured.
func (c *Config) BrowserPath() string { return c.v.GetString("browser.path") }

// BrowserEnabled reports whether the headless browser path may be used.
func (c *Config) BrowserEnabled() bool { return c.v.GetBool("browser.enabled") }

// Dotenv reports whether a project's .env is merged into spawned servers.
func (c *Config) Dotenv() bool { return c.v.GetBool("dotenv") }

// settings are the values that must hold before anything runs
type settings struct {
	DevPort         int           `key:"ports.dev" validate:"min=1,max=65535,nefield=PreviewPort,nefield=AppPort"`
	PreviewPort     int           `key:"ports.preview" validate:"min=1,max=65535,nefield=AppPort"`
	AppPort         int           `key:"ports.app" validate:"min=1,max=65535"`
	ReapSettle      time.Duration `key:"ports.reap_settle" validate:"gte=0"`
	ExecTimeout     time.Duration `key:"exec.timeout" validate:"gt=0"`
	MaxOutput       int           `key:"exec.max_output" validate:"gt=0"`
	Settle          time.Duration `key:"server.settle" validate:"gt=0"`
	InstallTimeout  time.Duration `key:"fixer.install_timeout" validate:"gt=0"`
	ValidateTimeout time.Duration `key:"validate.timeout" validate:"gt=0"`
	ProbeDelay      time.Duration `key:"validate.probe_delay" validate:"gte=0"`
	LogFormat       string        `key:"log.format" validate:"oneof=text json"`
}

// Validate checks ports and durations. The dev, preview and app ports must
// be distinct.
func (c *Config) Validate() error {
	s := settings{
		DevPort:         c.DevPort(),
		PreviewPort:     c.PreviewPort(),
		AppPort:         c.AppPort(),
		ReapSettle:      c.ReapSettle(),
		ExecTimeout:     c.ExecTimeout(),
		MaxOutput:       c.MaxOutput(),
		Settle:          c.Settle(),
		InstallTimeout:  c.InstallTimeout(),
		ValidateTimeout: c.ValidateTimeout(),
		ProbeDelay:      c.ProbeDelay(),
		LogFormat:       strings.ToLower(c.LogFormat()),
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("key")
	})

	err := validate.Struct(s)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "nefield":
			msgs = append(msgs, fmt.Sprintf("%s must differ from %s", fe.Field(), fieldKey(fe.Param())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is out of range (%s %s): %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldKey(name string) string {
	if f, ok := reflect.TypeOf(settings{}).FieldByName(name); ok {
		return f.Tag.Get("key")
	}
	return name
}
