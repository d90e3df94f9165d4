// Package transport delivers signed reports to the collector.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "collector rejected report: " + e.Status
}

// Permanent is true for 4xx answers other than timeout and rate limiting.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

type HTTPConfig struct {
	URL                string        `yaml:"url" env:"URL"`
	Timeout            time.Duration `yaml:"timeout"`
	CAFile             string        `yaml:"ca_file"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type HTTPTransmitter struct {
	url    string
	client *http.Client
}

func NewHTTPTransmitter(cfg HTTPConfig) (*HTTPTransmitter, error) {
	if cfg.URL == "" {
		return nil, errors.New("collector url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	// one report per connection, the uplink may drop between events
	tr.DisableKeepAlives = true
	if cfg.CAFile != "" || cfg.InsecureSkipVerify {
		tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec // opt-in for lab collectors
		if cfg.CAFile != "" {
			pem, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("ca file %s: no certificates found", cfg.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
		tr.TLSClientConfig = tlsCfg
	}

	return &HTTPTransmitter{
		url:    cfg.URL,
		client: &http.Client{Transport: tr, Timeout: cfg.Timeout},
	}, nil
}

func (h *HTTPTransmitter) Name() string { return "http" }

func (h *HTTPTransmitter) Send(ctx context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return ports.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = true

	resp, err := h.client.Do(req)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	receipt := ports.Receipt{Status: resp.Status}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return receipt, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return receipt, nil
}

var _ ports.Transmitter = (*HTTPTransmitter)(nil)
