package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/ghalamif/QuakeFlow"
	"github.com/ghalamif/QuakeFlow/internal/adapters/kvstore"
	"github.com/ghalamif/QuakeFlow/internal/app/identity"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "pubkey":
		err = pubkeyCommand(os.Args[2:])
	case "keygen":
		err = keygenCommand(os.Args[2:])
	case "verify":
		err = verifyCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("quakeflow-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := quakeflow.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := quakeflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: misurator=%d sensor=%s transport=%s on_failure=%s\n",
		*cfgPath, cfg.Device.MisuratorID, cfg.Sensor.Kind, cfg.Dispatch.Transport, cfg.Dispatch.OnFailure)
	return nil
}

// pubkeyCommand prints the stored public key for collector registration.
// It never generates a key.
func pubkeyCommand(args []string) error {
	fs := flag.NewFlagSet("pubkey", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	raw := fs.Bool("raw", false, "Print the raw X||Y key instead of PKIX DER")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := quakeflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := kvstore.OpenBolt(cfg.Identity.StorePath, cfg.Identity.Namespace)
	if err != nil {
		return err
	}
	defer store.Close()

	der, err := store.Get(identity.PrivateKeyName)
	if errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("no identity in %s; run keygen or start the device once", cfg.Identity.StorePath)
	}
	if err != nil {
		return err
	}
	id, err := identity.Parse(der)
	if err != nil {
		return err
	}
	if *raw {
		fmt.Println(id.RawPublicKeyHex())
	} else {
		fmt.Println(id.PublicKeyHex())
	}
	return nil
}

func keygenCommand(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := quakeflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := kvstore.OpenBolt(cfg.Identity.StorePath, cfg.Identity.Namespace)
	if err != nil {
		return err
	}
	defer store.Close()

	id, created, err := identity.Bootstrap(store, nil)
	if err != nil {
		return err
	}
	state := "existing"
	if created {
		state = "generated"
	}
	fmt.Printf("%s identity in %s\npublic_key_hex=%s\npublic_key_raw_hex=%s\n",
		state, cfg.Identity.StorePath, id.PublicKeyHex(), id.RawPublicKeyHex())
	return nil
}

func verifyCommand(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	pub := fs.String("pubkey", "", "Hex public key (PKIX DER or raw X||Y)")
	value := fs.Int("value", 0, "Reported fixed-point value")
	ts := fs.Int64("timestamp", 0, "Reported device_timestamp (unix seconds)")
	sig := fs.String("sig", "", "Hex DER signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pub == "" || *sig == "" {
		return fmt.Errorf("-pubkey and -sig are required")
	}

	msg := quakeflow.SignedPayload{Value: *value, DeviceTimestamp: *ts}.Message()
	if err := identity.Verify(*pub, msg, *sig); err != nil {
		return err
	}
	fmt.Printf("signature over %q is valid\n", msg)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			line, err := fetchSnapshot(ctx, *url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
				continue
			}
			fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), line)
		}
	}
}

var snapshotMetrics = []struct {
	label string
	name  string
}{
	{"samples", ports.SamplesTotal},
	{"events", ports.EventsTotal},
	{"queue", ports.QueueLength},
	{"queue_dropped", ports.QueueDroppedTotal},
	{"sent", ports.DispatchSentTotal},
	{"failed", ports.DispatchFailTotal},
	{"spooled", ports.SpooledTotal},
	{"spool_bytes", ports.SpoolSizeBytes},
	{"link", ports.LinkState},
	{"ratio", ports.StaLtaRatio},
}

func fetchSnapshot(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	return formatSnapshot(resp.Body)
}

func formatSnapshot(r io.Reader) (string, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(snapshotMetrics)+1)
	for _, m := range snapshotMetrics {
		parts = append(parts, fmt.Sprintf("%s=%g", m.label, metricValue(families[m.name])))
	}
	if h := families[ports.DispatchLatencySec]; h != nil && len(h.GetMetric()) > 0 {
		hist := h.GetMetric()[0].GetHistogram()
		if n := hist.GetSampleCount(); n > 0 {
			parts = append(parts, fmt.Sprintf("latency_avg=%.3fs", hist.GetSampleSum()/float64(n)))
		}
	}
	return strings.Join(parts, " "), nil
}

func metricValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	m := f.GetMetric()[0]
	switch f.GetType() {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

func printUsage() {
	fmt.Printf(`QuakeFlow edge CLI

Usage:
  quakeflow-edge <command> [flags]

Commands:
  run        Start the edge runtime using the provided config
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters
  pubkey     Print the stored public key for collector registration
  keygen     Create the device identity if none exists and print it
  verify     Check a reported signature against a public key

Examples:
  quakeflow-edge run -config ./data/config.yaml
  quakeflow-edge validate -config ./data/config.yaml
  quakeflow-edge stats -url http://localhost:9100/metrics -interval 1s
  quakeflow-edge pubkey -config ./data/config.yaml -raw
  quakeflow-edge verify -pubkey 3059... -value 250 -timestamp 1700000008 -sig 3045...
`)
}
