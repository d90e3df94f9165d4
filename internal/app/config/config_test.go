package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
device:
  data_dir: /var/lib/quakeflow
collector:
  url: "http://192.168.1.20:8000/misurations/"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Device.MisuratorID != 101 {
		t.Fatalf("expected misurator id default 101, got %d", cfg.Device.MisuratorID)
	}
	if cfg.Detector.Period != 10*time.Millisecond || cfg.Detector.StabilizationSamples != 20 {
		t.Fatalf("unexpected detector timing defaults %+v", cfg.Detector)
	}
	if cfg.Detector.TriggerRatio != 1.8 || cfg.Detector.Cooldown != 2*time.Second {
		t.Fatalf("unexpected detector defaults %+v", cfg.Detector.Config)
	}
	if cfg.Queue.Capacity != 20 || cfg.Queue.OnFull != ports.DropNewest {
		t.Fatalf("unexpected queue defaults %+v", cfg.Queue)
	}
	if cfg.Identity.StorePath != "/var/lib/quakeflow/nvs.db" || cfg.Identity.Namespace != "quake-keys" {
		t.Fatalf("unexpected identity defaults %+v", cfg.Identity)
	}
	if cfg.Dispatch.OnFailure != ports.OnFailureDrop || cfg.Dispatch.UnsyncedPolicy != ports.UnsyncedHold {
		t.Fatalf("unexpected dispatch policy defaults %+v", cfg.Dispatch)
	}
	if cfg.Link.ProbeAddress != "192.168.1.20:8000" {
		t.Fatalf("expected probe address derived from collector url, got %q", cfg.Link.ProbeAddress)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.Spool.Dir != "/var/lib/quakeflow/spool" {
		t.Fatalf("expected spool under data dir, got %s", cfg.Spool.Dir)
	}
	if cfg.Sensor.Kind != "simulated" || cfg.Sensor.Simulated.Period != cfg.Detector.Period {
		t.Fatalf("unexpected sensor defaults %+v", cfg.Sensor)
	}

	p := cfg.Policy()
	if p.QueueCapacity != 20 || p.SignAttempts != 3 || p.LinkCheckInterval != 5*time.Second {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("QUAKEFLOW_COLLECTOR_URL", "https://collector.example/misurations/")
	t.Setenv("QUAKEFLOW_MISURATOR_ID", "7")
	t.Setenv("QUAKEFLOW_MQTT_PASSWORD", "s3cret")
	t.Setenv("QUAKEFLOW_LOG_LEVEL", "debug")

	cfg, err := Parse([]byte("collector:\n  url: http://ignored:8000/\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Collector.URL != "https://collector.example/misurations/" {
		t.Fatalf("expected env collector url, got %s", cfg.Collector.URL)
	}
	if cfg.Device.MisuratorID != 7 {
		t.Fatalf("expected env misurator id 7, got %d", cfg.Device.MisuratorID)
	}
	if cfg.MQTT.Password != "s3cret" {
		t.Fatalf("expected env mqtt password")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Link.ProbeAddress != "collector.example:443" {
		t.Fatalf("expected https default port in probe address, got %s", cfg.Link.ProbeAddress)
	}
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"block":       "collector:\n  url: http://c:8000/\nqueue:\n  on_full: block\n",
		"on_failure":  "collector:\n  url: http://c:8000/\ndispatch:\n  on_failure: retry\n",
		"unsynced":    "collector:\n  url: http://c:8000/\ndispatch:\n  unsynced_policy: wait\n",
		"no url":      "device:\n  misurator_id: 3\n",
		"mqtt broker": "dispatch:\n  transport: mqtt\nlink:\n  mode: static\n",
		"opcua nodes": "collector:\n  url: http://c:8000/\nsensor:\n  kind: opcua\nopcua:\n  endpoint: opc.tcp://plc:4840\n",
		"timescale":   "collector:\n  url: http://c:8000/\narchive:\n  kind: timescale\n",
		"hpf":         "collector:\n  url: http://c:8000/\ndetector:\n  hpf_coefficient: 1.5\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseBlockPolicyMessage(t *testing.T) {
	_, err := Parse([]byte("collector:\n  url: http://c:8000/\nqueue:\n  on_full: block\n"))
	if err == nil || !strings.Contains(err.Error(), "stall the detector") {
		t.Fatalf("expected explicit block rejection, got %v", err)
	}
}

func TestParseMQTTTransport(t *testing.T) {
	raw := `
dispatch:
  transport: mqtt
  on_failure: spool
mqtt:
  broker: tcp://broker:1883
  qos: 1
link:
  mode: static
clock:
  mode: system
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MQTT.Topic != "quakeflow/misurations" || cfg.MQTT.QoS != 1 {
		t.Fatalf("unexpected mqtt config %+v", cfg.MQTT)
	}
	if cfg.Policy().OnDispatchFailure != ports.OnFailureSpool {
		t.Fatalf("expected spool policy")
	}
}

func TestParseDerivesProbeFromMQTTBroker(t *testing.T) {
	cases := map[string]string{
		"tcp://broker.lan:1883": "broker.lan:1883",
		"tcp://broker.lan":      "broker.lan:1883",
		"ssl://broker.lan":      "broker.lan:8883",
		"mqtts://10.0.0.5:9883": "10.0.0.5:9883",
	}
	for broker, want := range cases {
		raw := "collector:\n  url: http://collector.lan:8000/\ndispatch:\n  transport: mqtt\nmqtt:\n  broker: " + broker + "\n"
		cfg, err := Parse([]byte(raw))
		if err != nil {
			t.Fatalf("%s: parse: %v", broker, err)
		}
		if cfg.Link.Mode != "net" || cfg.Link.ProbeAddress != want {
			t.Fatalf("%s: expected probe %q, got mode=%s probe=%q", broker, want, cfg.Link.Mode, cfg.Link.ProbeAddress)
		}
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "data", "config.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if cfg.Dispatch.OnFailure != ports.OnFailureSpool || cfg.Archive.Kind != "sqlite" {
		t.Fatalf("unexpected shipped dispatch settings %+v %+v", cfg.Dispatch, cfg.Archive)
	}
}
