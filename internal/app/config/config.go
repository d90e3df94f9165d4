package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/QuakeFlow/internal/adapters/clock"
	"github.com/ghalamif/QuakeFlow/internal/adapters/link"
	"github.com/ghalamif/QuakeFlow/internal/adapters/opcua"
	"github.com/ghalamif/QuakeFlow/internal/adapters/sensor"
	"github.com/ghalamif/QuakeFlow/internal/adapters/transport"
	"github.com/ghalamif/QuakeFlow/internal/app/detector"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "QUAKEFLOW_"

type Config struct {
	Device    DeviceConfig         `yaml:"device"`
	Detector  DetectorConfig       `yaml:"detector"`
	Queue     QueueConfig          `yaml:"queue"`
	Identity  IdentityConfig       `yaml:"identity"`
	Dispatch  DispatchConfig       `yaml:"dispatch"`
	Collector transport.HTTPConfig `yaml:"collector" envPrefix:"COLLECTOR_"`
	MQTT      transport.MQTTConfig `yaml:"mqtt" envPrefix:"MQTT_"`
	Link      LinkConfig           `yaml:"link"`
	Clock     ClockConfig          `yaml:"clock"`
	Sensor    SensorConfig         `yaml:"sensor"`
	OPCUA     opcua.Config         `yaml:"opcua" envPrefix:"OPCUA_"`
	Spool     SpoolConfig          `yaml:"spool"`
	Archive   ArchiveConfig        `yaml:"archive"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Logging   LoggingConfig        `yaml:"logging"`
}

type DeviceConfig struct {
	MisuratorID int    `yaml:"misurator_id" env:"MISURATOR_ID"`
	DataDir     string `yaml:"data_dir" env:"DATA_DIR"`
}

type DetectorConfig struct {
	detector.Config      `yaml:",inline"`
	Period               time.Duration `yaml:"period"`
	StabilizationSamples int           `yaml:"stabilization_samples"`
}

type QueueConfig struct {
	Capacity int    `yaml:"capacity"`
	OnFull   string `yaml:"on_full"`
}

type IdentityConfig struct {
	StorePath    string `yaml:"store_path"`
	Namespace    string `yaml:"namespace"`
	SignAttempts int    `yaml:"sign_attempts"`
}

type DispatchConfig struct {
	Transport         string        `yaml:"transport" env:"TRANSPORT"`
	OnFailure         string        `yaml:"on_failure"`
	UnsyncedPolicy    string        `yaml:"unsynced_policy"`
	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`
	SyncBackoff       time.Duration `yaml:"sync_backoff"`
	LinkCheckInterval time.Duration `yaml:"link_check_interval"`
}

type LinkConfig struct {
	Mode        string `yaml:"mode"`
	link.Config `yaml:",inline"`
}

type ClockConfig struct {
	Mode            string `yaml:"mode"`
	clock.NTPConfig `yaml:",inline"`
}

type SensorConfig struct {
	Kind      string           `yaml:"kind" env:"SENSOR"`
	Simulated sensor.SimConfig `yaml:"simulated"`
}

type SpoolConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type ArchiveConfig struct {
	Kind       string `yaml:"kind"`
	SQLitePath string `yaml:"sqlite_path"`
	DSN        string `yaml:"dsn" env:"ARCHIVE_DSN"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, applies QUAKEFLOW_ environment overrides, fills
// defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.MisuratorID == 0 {
		c.Device.MisuratorID = 101
	}
	if c.Device.DataDir == "" {
		c.Device.DataDir = "./data"
	}

	c.Detector.ApplyDefaults()
	if c.Detector.Period <= 0 {
		c.Detector.Period = 10 * time.Millisecond
	}
	if c.Detector.StabilizationSamples == 0 {
		c.Detector.StabilizationSamples = 20
	}

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 20
	}
	if c.Queue.OnFull == "" {
		c.Queue.OnFull = ports.DropNewest
	}

	if c.Identity.StorePath == "" {
		c.Identity.StorePath = filepath.Join(c.Device.DataDir, "nvs.db")
	}
	if c.Identity.Namespace == "" {
		c.Identity.Namespace = "quake-keys"
	}
	if c.Identity.SignAttempts == 0 {
		c.Identity.SignAttempts = 3
	}

	if c.Dispatch.Transport == "" {
		c.Dispatch.Transport = "http"
	}
	if c.Dispatch.OnFailure == "" {
		c.Dispatch.OnFailure = ports.OnFailureDrop
	}
	if c.Dispatch.UnsyncedPolicy == "" {
		c.Dispatch.UnsyncedPolicy = ports.UnsyncedHold
	}
	if c.Dispatch.ReconnectBackoff <= 0 {
		c.Dispatch.ReconnectBackoff = 5 * time.Second
	}
	if c.Dispatch.SyncBackoff <= 0 {
		c.Dispatch.SyncBackoff = 2 * time.Second
	}
	if c.Dispatch.LinkCheckInterval <= 0 {
		c.Dispatch.LinkCheckInterval = 5 * time.Second
	}

	if c.Collector.Timeout <= 0 {
		c.Collector.Timeout = 10 * time.Second
	}
	c.MQTT.ApplyDefaults()

	if c.Link.Mode == "" {
		c.Link.Mode = "net"
	}
	if c.Link.ProbeAddress == "" {
		if c.Dispatch.Transport == "mqtt" {
			c.Link.ProbeAddress = probeAddressFor(c.MQTT.Broker)
		} else {
			c.Link.ProbeAddress = probeAddressFor(c.Collector.URL)
		}
	}
	c.Link.ApplyDefaults()

	if c.Clock.Mode == "" {
		c.Clock.Mode = "ntp"
	}

	if c.Sensor.Kind == "" {
		c.Sensor.Kind = "simulated"
	}
	c.Sensor.Simulated.Period = c.Detector.Period
	c.Sensor.Simulated.ApplyDefaults()
	if c.Sensor.Kind == "opcua" {
		c.OPCUA.ApplyDefaults()
	}

	if c.Spool.Dir == "" {
		c.Spool.Dir = filepath.Join(c.Device.DataDir, "spool")
	}
	if c.Spool.MaxBytes == 0 {
		c.Spool.MaxBytes = 1 << 20
	}

	if c.Archive.SQLitePath == "" {
		c.Archive.SQLitePath = filepath.Join(c.Device.DataDir, "archive.db")
	}
	if c.Archive.Table == "" {
		c.Archive.Table = "dispatches"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Device.MisuratorID <= 0 {
		return errors.New("device.misurator_id must be positive")
	}
	if err := c.validateDetector(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}

	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	switch c.Queue.OnFull {
	case ports.DropNewest, ports.DropOldest:
	case "block":
		return errors.New("queue.on_full=block would stall the detector; use drop_newest or drop_oldest")
	default:
		return fmt.Errorf("queue.on_full %q is not supported", c.Queue.OnFull)
	}

	if c.Identity.SignAttempts < 1 {
		return errors.New("identity.sign_attempts must be at least 1")
	}

	switch c.Dispatch.OnFailure {
	case ports.OnFailureDrop, ports.OnFailureSpool:
	default:
		return fmt.Errorf("dispatch.on_failure %q is not supported", c.Dispatch.OnFailure)
	}
	switch c.Dispatch.UnsyncedPolicy {
	case ports.UnsyncedHold, ports.UnsyncedDrop:
	default:
		return fmt.Errorf("dispatch.unsynced_policy %q is not supported", c.Dispatch.UnsyncedPolicy)
	}
	switch c.Dispatch.Transport {
	case "http":
		if c.Collector.URL == "" {
			return errors.New("collector.url is required for the http transport")
		}
		if _, err := url.ParseRequestURI(c.Collector.URL); err != nil {
			return fmt.Errorf("collector.url: %w", err)
		}
	case "mqtt":
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required for the mqtt transport")
		}
		if c.MQTT.QoS > 2 {
			return errors.New("mqtt.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("dispatch.transport %q is not supported", c.Dispatch.Transport)
	}

	switch c.Link.Mode {
	case "static":
	case "net":
		if c.Link.ProbeAddress == "" {
			return errors.New("link.probe_address is required when the collector url or mqtt broker has no host")
		}
	default:
		return fmt.Errorf("link.mode %q is not supported", c.Link.Mode)
	}
	switch c.Clock.Mode {
	case "ntp", "system":
	default:
		return fmt.Errorf("clock.mode %q is not supported", c.Clock.Mode)
	}

	switch c.Sensor.Kind {
	case "simulated":
	case "opcua":
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("sensor.kind %q is not supported", c.Sensor.Kind)
	}

	if c.Dispatch.OnFailure == ports.OnFailureSpool && c.Spool.MaxBytes <= 0 {
		return errors.New("spool.max_bytes must be positive when dispatch.on_failure=spool")
	}

	switch c.Archive.Kind {
	case "", "none", "sqlite":
	case "timescale":
		if c.Archive.DSN == "" {
			return errors.New("archive.dsn is required for the timescale archive")
		}
	default:
		return fmt.Errorf("archive.kind %q is not supported", c.Archive.Kind)
	}
	return nil
}

func (c *Config) validateDetector() error {
	d := c.Detector
	if d.HPFCoefficient <= 0 || d.HPFCoefficient >= 1 {
		return errors.New("hpf_coefficient must be in (0,1)")
	}
	if d.AlphaLTA <= 0 || d.AlphaLTA > 1 || d.AlphaSTA <= 0 || d.AlphaSTA > 1 {
		return errors.New("alpha_lta and alpha_sta must be in (0,1]")
	}
	if d.LTAFloor <= 0 {
		return errors.New("lta_floor must be positive")
	}
	if d.TriggerRatio <= 0 {
		return errors.New("trigger_ratio must be positive")
	}
	if d.StabilizationSamples < 0 {
		return errors.New("stabilization_samples must not be negative")
	}
	return nil
}

// Policy collects the runtime knobs shared by the pipelines.
func (c *Config) Policy() ports.Policy {
	return ports.Policy{
		QueueCapacity:     c.Queue.Capacity,
		OnQueueFull:       c.Queue.OnFull,
		OnDispatchFailure: c.Dispatch.OnFailure,
		UnsyncedPolicy:    c.Dispatch.UnsyncedPolicy,
		MaxSpoolBytes:     c.Spool.MaxBytes,
		ReconnectBackoff:  c.Dispatch.ReconnectBackoff,
		SyncBackoff:       c.Dispatch.SyncBackoff,
		LinkCheckInterval: c.Dispatch.LinkCheckInterval,
		SignAttempts:      c.Identity.SignAttempts,
	}
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"tcp":   "1883",
	"mqtt":  "1883",
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
}

// probeAddressFor derives host:port from a collector URL or broker URI.
func probeAddressFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		if port = defaultPorts[u.Scheme]; port == "" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
