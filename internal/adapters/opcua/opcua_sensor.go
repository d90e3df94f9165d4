package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

var ErrNotOpen = errors.New("opcua sensor not open")

// Config captures the runtime details required to open an OPC UA session
// against a PLC or gateway exposing one accelerometer axis per node.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	NodeX           string        `yaml:"node_x"`
	NodeY           string        `yaml:"node_y"`
	NodeZ           string        `yaml:"node_z"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "QuakeFlow Edge"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.NodeX == "" || c.NodeY == "" || c.NodeZ == "" {
		return errors.New("node_x, node_y and node_z are required")
	}
	return nil
}

// Sensor reads the three axes in one synchronous Read service call per sample.
type Sensor struct {
	cfg    Config
	nodes  []*ua.ReadValueID
	mu     sync.Mutex
	client *opcua.Client
}

func NewSensor(cfg Config) (*Sensor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nodes := make([]*ua.ReadValueID, 0, 3)
	for _, raw := range []string{cfg.NodeX, cfg.NodeY, cfg.NodeZ} {
		id, err := ua.ParseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", raw, err)
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}
	return &Sensor{cfg: cfg, nodes: nodes}, nil
}

func (s *Sensor) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	client, err := opcua.NewClient(s.cfg.Endpoint, s.buildClientOptions()...)
	if err != nil {
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("opcua connect: %w", err)
	}
	s.client = client
	return nil
}

func (s *Sensor) Read() (domain.Sample, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return domain.Sample{}, ErrNotOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
	defer cancel()

	resp, err := client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        s.nodes,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return domain.Sample{}, fmt.Errorf("opcua read: %w", err)
	}
	return sampleFromResults(resp.Results)
}

func (s *Sensor) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sampleFromResults(results []*ua.DataValue) (domain.Sample, error) {
	if len(results) != 3 {
		return domain.Sample{}, fmt.Errorf("opcua read: expected 3 results, got %d", len(results))
	}
	var axes [3]float64
	for i, dv := range results {
		if dv == nil {
			return domain.Sample{}, fmt.Errorf("opcua read: axis %d missing", i)
		}
		if dv.Status != ua.StatusOK {
			return domain.Sample{}, fmt.Errorf("opcua read: axis %d status %s", i, dv.Status)
		}
		v, ok := variantToFloat(dv.Value)
		if !ok {
			return domain.Sample{}, fmt.Errorf("opcua read: axis %d unsupported type", i)
		}
		axes[i] = v
	}
	return domain.Sample{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

func (s *Sensor) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Sensor = (*Sensor)(nil)
