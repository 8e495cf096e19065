package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"appliancemon/internal/cycle"
	"appliancemon/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultInterval          = 10
	defaultSampleTimeout     = 5
	defaultShutdownTimeout   = 10
	defaultFailureStreakWarn = 6
	defaultMaxAttempts       = 3
	defaultRetryBackoff      = 5
)

// Config is the full daemon configuration, loaded once at startup from the
// TOML file, environment and flags. Immutable afterwards.
type Config struct {
	// Interval is the poll cadence in seconds, shared by all appliances
	Interval int `mapstructure:"interval"`
	// SampleTimeout bounds a single device read, in seconds
	SampleTimeout int `mapstructure:"sample_timeout"`
	// ShutdownTimeout bounds the drain on termination, in seconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	LogLevel        string `mapstructure:"log_level"`

	Appliances []Appliance `mapstructure:"appliance"`
	Telemetry  Telemetry   `mapstructure:"telemetry"`
	Notify     Notify      `mapstructure:"notify"`
}

// Appliance mirrors one [[appliance]] block.
type Appliance struct {
	Name             string  `mapstructure:"name"`
	Device           string  `mapstructure:"device"`
	StartThreshold   float64 `mapstructure:"start_threshold"`
	RunningThreshold float64 `mapstructure:"running_threshold"`
	// IdleTimeout is the completion debounce in seconds
	IdleTimeout       int `mapstructure:"idle_timeout"`
	FailureStreakWarn int `mapstructure:"failure_streak_warn"`
}

// Telemetry mirrors the [telemetry] block.
type Telemetry struct {
	Enabled  bool   `mapstructure:"enabled"`
	Database string `mapstructure:"database"`
}

// Notify mirrors the [notify] block. A backend sub-table is enabled when its
// required fields are set.
type Notify struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryBackoff is the initial retry wait in seconds
	RetryBackoff int `mapstructure:"retry_backoff"`

	Ntfy     NtfySettings     `mapstructure:"ntfy"`
	Pushover PushoverSettings `mapstructure:"pushover"`
	Telegram TelegramSettings `mapstructure:"telegram"`
	MQTT     MQTTSettings     `mapstructure:"mqtt"`
}

type NtfySettings struct {
	Server string `mapstructure:"server"`
	Topic  string `mapstructure:"topic"`
}

type PushoverSettings struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

type TelegramSettings struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type MQTTSettings struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// Load reads configuration from /etc/appliancemon.toml (or the file named by
// APPLIANCEMON_CONFIG or --config), applies environment and flag overrides,
// and validates the result. Appliance invariant violations fail here, at
// startup.
func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("appliancemon", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	interval := flags.Int("interval", 0, "Seconds between polls")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warning, error)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("sample_timeout", defaultSampleTimeout)
	v.SetDefault("shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("notify.max_attempts", defaultMaxAttempts)
	v.SetDefault("notify.retry_backoff", defaultRetryBackoff)

	switch {
	case *configPath != "":
		v.SetConfigFile(*configPath)
	case os.Getenv("APPLIANCEMON_CONFIG") != "":
		v.SetConfigFile(os.Getenv("APPLIANCEMON_CONFIG"))
	default:
		v.SetConfigName("appliancemon")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command line flags override file and defaults
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "interval":
			v.Set("interval", *interval)
		case "log-level":
			v.Set("log_level", *logLevel)
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the global settings and every appliance's invariants.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if len(c.Appliances) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "no appliances configured")
	}

	for _, appliance := range c.Appliances {
		if err := appliance.cycleConfig().Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ApplianceConfigs converts the raw appliance blocks into validated detection
// configs.
func (c *Config) ApplianceConfigs() []cycle.Config {
	configs := make([]cycle.Config, 0, len(c.Appliances))
	for _, appliance := range c.Appliances {
		configs = append(configs, appliance.cycleConfig())
	}

	return configs
}

func (a Appliance) cycleConfig() cycle.Config {
	warn := a.FailureStreakWarn
	if warn <= 0 {
		warn = defaultFailureStreakWarn
	}

	return cycle.Config{
		Name:              a.Name,
		DeviceID:          a.Device,
		StartThreshold:    a.StartThreshold,
		RunningThreshold:  a.RunningThreshold,
		IdleTimeout:       time.Duration(a.IdleTimeout) * time.Second,
		FailureStreakWarn: warn,
	}
}

// PollInterval returns the shared poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// SampleTimeoutDuration returns the per-read timeout.
func (c *Config) SampleTimeoutDuration() time.Duration {
	return time.Duration(c.SampleTimeout) * time.Second
}

// ShutdownTimeoutDuration returns the shutdown drain deadline.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// IsDebug reports whether debug logging is enabled.
func (c *Config) IsDebug() bool {
	return LogLevel(c.LogLevel) == LogLevelDebug
}

// IsVerbose reports whether info logging is enabled.
func (c *Config) IsVerbose() bool {
	return LogLevel(c.LogLevel) == LogLevelInfo
}
