package quakeflow

import (
	"github.com/ghalamif/QuakeFlow/internal/adapters/opcua"
	"github.com/ghalamif/QuakeFlow/internal/adapters/sensor"
	"github.com/ghalamif/QuakeFlow/internal/adapters/transport"
	"github.com/ghalamif/QuakeFlow/internal/app/config"
	"github.com/ghalamif/QuakeFlow/internal/app/detector"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy holds queue, dispatch and spool thresholds.
	Policy = ports.Policy
	// DetectorConfig holds the STA/LTA constants plus sampling cadence.
	DetectorConfig = config.DetectorConfig
	// DetectorConstants are the signal-processing parameters alone.
	DetectorConstants = detector.Config
	// CollectorConfig configures the HTTP transport.
	CollectorConfig = transport.HTTPConfig
	// MQTTConfig configures the MQTT transport.
	MQTTConfig = transport.MQTTConfig
	// OPCUAConfig holds connection and axis node details.
	OPCUAConfig = opcua.Config
	// SimulatedSensorConfig shapes the bench accelerometer.
	SimulatedSensorConfig = sensor.SimConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// SpoolConfig configures on-disk redelivery.
	SpoolConfig = config.SpoolConfig
	// ArchiveConfig selects the optional dispatch archive.
	ArchiveConfig = config.ArchiveConfig
)

// LoadConfig loads YAML from disk, applies QUAKEFLOW_ environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
