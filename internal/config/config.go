package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Versifine/portfwd/internal/logger"
	"github.com/Versifine/portfwd/internal/proxy"
)

type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Target  TargetConfig  `yaml:"target"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}
type TargetConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}
type RelayConfig struct {
	Backlog     int           `yaml:"backlog"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PORTFWD_"

func Default() *Config {
	return &Config{
		Listen: ListenConfig{Host: "0.0.0.0"},
		Target: TargetConfig{Host: "127.0.0.1"},
		Relay: RelayConfig{
			Backlog:     proxy.DefaultBacklog,
			DialTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PORTFWD_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = d
	}

	str("LISTEN_HOST", &c.Listen.Host)
	num("LISTEN_PORT", &c.Listen.Port)
	str("TARGET_HOST", &c.Target.Host)
	num("TARGET_PORT", &c.Target.Port)
	num("BACKLOG", &c.Relay.Backlog)
	dur("DIAL_TIMEOUT", &c.Relay.DialTimeout)
	dur("IDLE_TIMEOUT", &c.Relay.IdleTimeout)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if err := checkIPv4("listen.host", c.Listen.Host); err != nil {
		errs = append(errs, err)
	}
	if err := checkIPv4("target.host", c.Target.Host); err != nil {
		errs = append(errs, err)
	}
	if err := checkPort("listen.port", c.Listen.Port); err != nil {
		errs = append(errs, err)
	}
	if err := checkPort("target.port", c.Target.Port); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.Backlog < 1 {
		errs = append(errs, fmt.Errorf("relay.backlog must be at least 1, got %d", c.Relay.Backlog))
	}
	if c.Relay.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.dial_timeout must not be negative"))
	}
	if c.Relay.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.idle_timeout must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "auto", "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of auto, console, text, json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenEndpoint() (proxy.Endpoint, error) {
	return proxy.ParseEndpoint(c.Listen.Host, c.Listen.Port)
}

func (c *Config) TargetEndpoint() (proxy.Endpoint, error) {
	return proxy.ParseEndpoint(c.Target.Host, c.Target.Port)
}

func (c *Config) ProxyOptions() proxy.Options {
	return proxy.Options{
		Backlog:     c.Relay.Backlog,
		DialTimeout: c.Relay.DialTimeout,
		IdleTimeout: c.Relay.IdleTimeout,
	}
}

func checkIPv4(field, host string) error {
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Unmap().Is4() {
		return fmt.Errorf("%s %q is not an IPv4 address", field, host)
	}
	return nil
}

func checkPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range 1-65535", field, port)
	}
	return nil
}
