// Package config loads the daemon configuration from the environment.
// A .env file is read first when present; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/bridge"
	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
	"github.com/sweeney/doorbell/internal/notify"
	"github.com/sweeney/doorbell/internal/push"
	"github.com/sweeney/doorbell/internal/subscription"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is populated from environment variables.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// HTTP
	HTTPAddr          string
	CORSAllowOrigins  []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// GPIO
	GPIOChip       string
	ButtonPin      int
	RelayPin       int
	ButtonActive   gpio.Level
	ButtonPull     gpio.Pull
	RelayActive    gpio.Level
	Mock           bool
	PollInterval   time.Duration
	SettleInterval time.Duration

	// Engine
	BurstThreshold int
	BurstWindow    time.Duration

	// Notifications
	PushEnabled        bool
	NotifyCooldown     time.Duration
	NotifyCooldownMode notify.CooldownMode
	NotifyTTL          time.Duration
	NotifyTimeout      time.Duration
	NotifyConcurrency  int
	VAPID              push.Credentials

	// Subscription store
	Store subscription.Options

	// MQTT bridge; disabled when MQTTBroker is empty
	MQTTBroker      string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTDeviceID    string
	MQTTPressHold   time.Duration

	// SNS announcements; disabled when SNSTopicARN is empty
	SNSTopicARN string
	SNSEndpoint string

	// mDNS
	MDNSEnabled  bool
	MDNSInstance string
}

// LoadEnvFile reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("file", path).Debug("no env file found")
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
// All parse errors are reported together, wrapped in ErrInvalid.
func Load() (*Config, error) {
	var e env

	c := &Config{
		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "text"),

		HTTPAddr:          e.str("HTTP_ADDR", ":8080"),
		CORSAllowOrigins:  e.list("CORS_ALLOW_ORIGINS", []string{"*"}),
		RateLimitRequests: e.integer("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   e.duration("RATE_LIMIT_WINDOW", time.Minute),

		GPIOChip:       e.str("GPIO_CHIP", gpio.DefaultChip),
		ButtonPin:      e.integer("GPIO_BUTTON_PIN", gpio.DefaultButtonPin),
		RelayPin:       e.integer("GPIO_RELAY_PIN", gpio.DefaultRelayPin),
		ButtonActive:   e.level("GPIO_BUTTON_ACTIVE", gpio.Low),
		ButtonPull:     e.pull("GPIO_BUTTON_PULL", gpio.PullUp),
		RelayActive:    e.level("GPIO_RELAY_ACTIVE", gpio.High),
		Mock:           e.boolean("GPIO_MOCK", false),
		PollInterval:   e.duration("POLL_INTERVAL", 20*time.Millisecond),
		SettleInterval: e.duration("SETTLE_INTERVAL", 50*time.Millisecond),

		BurstThreshold: e.integer("BURST_THRESHOLD", logic.DefaultBurstThreshold),
		BurstWindow:    e.duration("BURST_WINDOW", logic.DefaultBurstWindow),

		PushEnabled:        e.boolean("PUSH_ENABLED", true),
		NotifyCooldown:     e.duration("NOTIFY_COOLDOWN", notify.DefaultCooldown),
		NotifyCooldownMode: e.cooldownMode("NOTIFY_COOLDOWN_MODE"),
		NotifyTTL:          e.duration("NOTIFY_TTL", notify.DefaultTTL),
		NotifyTimeout:      e.duration("NOTIFY_TIMEOUT", notify.DefaultTimeout),
		NotifyConcurrency:  e.integer("NOTIFY_CONCURRENCY", 0),
		VAPID: push.Credentials{
			PublicKey:  e.str("VAPID_PUBLIC_KEY", ""),
			PrivateKey: e.str("VAPID_PRIVATE_KEY", ""),
			Subject:    e.str("VAPID_SUBJECT", e.str("VAPID_EMAIL", "")),
		},

		Store: subscription.Options{
			Backend:       e.str("STORE_BACKEND", subscription.BackendMemory),
			RedisAddr:     e.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword: e.str("REDIS_PASSWORD", ""),
			RedisDB:       e.integer("REDIS_DB", 0),
			RedisKey:      e.str("REDIS_KEY", ""),
			DatabaseURL:   e.str("DATABASE_URL", ""),
			DDBTable:      e.str("DDB_TABLE", "doorbell_subscriptions"),
			DDBEndpoint:   e.str("DDB_ENDPOINT", ""),
			AWSRegion:     e.str("AWS_REGION", ""),
		},

		MQTTBroker:      e.str("MQTT_BROKER", ""),
		MQTTUsername:    e.str("MQTT_USERNAME", ""),
		MQTTPassword:    e.str("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: e.str("MQTT_TOPIC_PREFIX", bridge.DefaultTopicPrefix),
		MQTTDeviceID:    e.str("MQTT_DEVICE_ID", bridge.DefaultDeviceID),
		MQTTPressHold:   e.duration("MQTT_PRESS_HOLD", bridge.DefaultPressHold),

		SNSTopicARN: e.str("SNS_TOPIC_ARN", ""),
		SNSEndpoint: e.str("SNS_ENDPOINT", ""),

		MDNSEnabled:  e.boolean("MDNS_ENABLED", false),
		MDNSInstance: e.str("MDNS_INSTANCE", "Doorbell"),
	}

	if len(e.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(e.errs...))
	}
	return c, nil
}

// Validate checks value ranges and the settings the serve command needs.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTPAddr != "", "HTTP_ADDR is required")
	check(c.ButtonPin >= 0, "GPIO_BUTTON_PIN must not be negative")
	check(c.RelayPin >= 0, "GPIO_RELAY_PIN must not be negative")
	check(c.Mock || c.ButtonPin != c.RelayPin, "GPIO_BUTTON_PIN and GPIO_RELAY_PIN must differ")
	check(c.PollInterval > 0, "POLL_INTERVAL must be positive")
	check(c.SettleInterval >= 0, "SETTLE_INTERVAL must not be negative")
	check(c.BurstThreshold > 0, "BURST_THRESHOLD must be positive")
	check(c.BurstWindow > 0, "BURST_WINDOW must be positive")
	check(c.NotifyCooldown > 0, "NOTIFY_COOLDOWN must be positive")
	check(c.NotifyTTL >= time.Second, "NOTIFY_TTL must be at least 1s")
	check(c.NotifyTimeout > 0, "NOTIFY_TIMEOUT must be positive")
	check(c.NotifyConcurrency >= 0, "NOTIFY_CONCURRENCY must not be negative")
	check(c.RateLimitRequests >= 0, "RATE_LIMIT_REQUESTS must not be negative")
	check(c.RateLimitWindow > 0, "RATE_LIMIT_WINDOW must be positive")
	check(c.MQTTBroker == "" || c.MQTTDeviceID != "", "MQTT_DEVICE_ID is required with MQTT_BROKER")
	check(c.MQTTPressHold > 0, "MQTT_PRESS_HOLD must be positive")

	if c.PushEnabled {
		check(c.VAPID.PublicKey != "", "VAPID_PUBLIC_KEY is required")
		check(c.VAPID.PrivateKey != "", "VAPID_PRIVATE_KEY is required")
		check(validSubject(c.VAPID.Subject), "VAPID_SUBJECT must be an email, mailto: or https: URL")
	}

	switch c.Store.Backend {
	case subscription.BackendMemory, subscription.BackendRedis, subscription.BackendDynamo:
	case subscription.BackendPostgres:
		check(c.Store.DatabaseURL != "", "DATABASE_URL is required for the postgres store")
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Polarity returns the engine polarity.
func (c *Config) Polarity() logic.Polarity {
	return logic.Polarity{ButtonActive: c.ButtonActive, RelayActive: c.RelayActive}
}

// BridgeEnabled reports whether an MQTT broker is configured.
func (c *Config) BridgeEnabled() bool {
	return c.MQTTBroker != ""
}

// ConfigureLogging applies LogLevel and LogFormat to the standard logger.
func (c *Config) ConfigureLogging() error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %w", ErrInvalid, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(c.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

func validSubject(s string) bool {
	switch {
	case strings.HasPrefix(s, "https://"):
		return len(s) > len("https://")
	case strings.HasPrefix(s, "mailto:"):
		return strings.Contains(s, "@")
	default:
		at := strings.Index(s, "@")
		return at > 0 && at < len(s)-1
	}
}

// env reads typed variables, collecting parse errors instead of silently
// falling back.
type env struct {
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *env) boolean(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

// duration accepts Go durations ("250ms", "1m") or a bare number of
// milliseconds.
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func (e *env) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (e *env) level(key string, fallback gpio.Level) gpio.Level {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	l, err := gpio.ParseLevel(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return l
}

func (e *env) pull(key string, fallback gpio.Pull) gpio.Pull {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	p, err := gpio.ParsePull(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return p
}

func (e *env) cooldownMode(key string) notify.CooldownMode {
	m, err := notify.ParseCooldownMode(e.str(key, ""))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return notify.ModeExtend
	}
	return m
}
