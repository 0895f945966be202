package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// ErrInvalid indicates a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every tunable of the call engine and the sandbox tool.
type Config struct {
	AppID             string        `env:"APP_ID"              envDefault:"meshcall"`
	RelayURLs         []string      `env:"RELAY_URLS"          envDefault:"wss://relay.damus.io,wss://nos.lol,wss://relay.snort.social" envSeparator:","`
	RelayRedundancy   int           `env:"RELAY_REDUNDANCY"    envDefault:"2"`
	RelayProbe        bool          `env:"RELAY_PROBE"         envDefault:"false"`
	RelayProbeTimeout time.Duration `env:"RELAY_PROBE_TIMEOUT" envDefault:"5s"`

	InviteMaxAttempts    int           `env:"INVITE_MAX_ATTEMPTS"    envDefault:"5"`
	InviteRingWindow     time.Duration `env:"INVITE_RING_WINDOW"     envDefault:"30s"`
	InviteRetryPause     time.Duration `env:"INVITE_RETRY_PAUSE"     envDefault:"3s"`
	InviteConnectTimeout time.Duration `env:"INVITE_CONNECT_TIMEOUT" envDefault:"10s"`

	NoAnswerWindow     time.Duration `env:"NO_ANSWER_WINDOW"    envDefault:"35s"`
	EndCallFeedback    time.Duration `env:"END_CALL_FEEDBACK"   envDefault:"3500ms"`
	SpeakingHysteresis time.Duration `env:"SPEAKING_HYSTERESIS" envDefault:"200ms"`
	NoiseSuppression   float64       `env:"NOISE_SUPPRESSION"   envDefault:"0.5"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	HTTPAddr  string `env:"HTTP_ADDR"  envDefault:":8080"`
}

// Prefix is prepended to every variable name.
const Prefix = "MESHCALL_"

// Load reads the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration an empty environment produces.
func Default() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      Prefix,
		Environment: map[string]string{},
	})
	if err != nil {
		// Defaults are static; a failure here is a bad struct tag.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Validate checks ranges the type system cannot express.
func (c Config) Validate() error {
	switch {
	case c.AppID == "":
		return fmt.Errorf("%w: app id is empty", ErrInvalid)
	case c.RelayRedundancy < 1:
		return fmt.Errorf("%w: relay redundancy %d < 1", ErrInvalid, c.RelayRedundancy)
	case c.RelayProbeTimeout <= 0:
		return fmt.Errorf("%w: relay probe timeout %s", ErrInvalid, c.RelayProbeTimeout)
	case c.InviteMaxAttempts < 1:
		return fmt.Errorf("%w: invite max attempts %d < 1", ErrInvalid, c.InviteMaxAttempts)
	case c.InviteRingWindow <= 0:
		return fmt.Errorf("%w: ring window %s", ErrInvalid, c.InviteRingWindow)
	case c.InviteRetryPause < 0:
		return fmt.Errorf("%w: retry pause %s", ErrInvalid, c.InviteRetryPause)
	case c.InviteConnectTimeout <= 0:
		return fmt.Errorf("%w: connect timeout %s", ErrInvalid, c.InviteConnectTimeout)
	case c.NoAnswerWindow <= 0:
		return fmt.Errorf("%w: no-answer window %s", ErrInvalid, c.NoAnswerWindow)
	case c.EndCallFeedback < 0:
		return fmt.Errorf("%w: end-call feedback %s", ErrInvalid, c.EndCallFeedback)
	case c.SpeakingHysteresis < 0:
		return fmt.Errorf("%w: speaking hysteresis %s", ErrInvalid, c.SpeakingHysteresis)
	case c.NoiseSuppression < 0 || c.NoiseSuppression > 1:
		return fmt.Errorf("%w: noise suppression %v outside [0, 1]", ErrInvalid, c.NoiseSuppression)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus
// logger.
func (c Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	logrus.SetLevel(level)
	switch c.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
