package quakeflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/QuakeFlow/internal/adapters/clock"
	"github.com/ghalamif/QuakeFlow/internal/adapters/kvstore"
	"github.com/ghalamif/QuakeFlow/internal/adapters/link"
	"github.com/ghalamif/QuakeFlow/internal/adapters/observability"
	"github.com/ghalamif/QuakeFlow/internal/adapters/opcua"
	"github.com/ghalamif/QuakeFlow/internal/adapters/queue"
	"github.com/ghalamif/QuakeFlow/internal/adapters/sensor"
	"github.com/ghalamif/QuakeFlow/internal/adapters/sink"
	"github.com/ghalamif/QuakeFlow/internal/adapters/transport"
	"github.com/ghalamif/QuakeFlow/internal/adapters/wal"
	"github.com/ghalamif/QuakeFlow/internal/app/detector"
	"github.com/ghalamif/QuakeFlow/internal/app/identity"
	"github.com/ghalamif/QuakeFlow/internal/app/pipeline"
	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sensor        Sensor
	transmitter   Transmitter
	queue         EventQueue
	link          Link
	clock         Clock
	store         KVStore
	spool         Spool
	archive       Archive
	observability Observability
	rng           io.Reader
}

// WithSensor injects a custom sample source (another bus driver, a replay file, tests).
func WithSensor(s Sensor) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sensor = s
	}
}

// WithTransmitter replaces the configured HTTP/MQTT transport.
func WithTransmitter(t Transmitter) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.transmitter = t
	}
}

// WithEventQueue injects a custom queue implementation.
func WithEventQueue(q EventQueue) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithLink overrides network association checks.
func WithLink(l Link) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.link = l
	}
}

// WithClock overrides the NTP/system clock.
func WithClock(c Clock) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// WithKeyStore lets callers keep the identity somewhere other than the bbolt file.
func WithKeyStore(s KVStore) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithSpool brings a custom spool; it is only used with dispatch.on_failure=spool.
func WithSpool(s Spool) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.spool = s
	}
}

// WithArchive records dispatch attempts regardless of archive.kind.
func WithArchive(a Archive) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.archive = a
	}
}

// WithObservability plugs in a custom logging/metrics backend.
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRandom sets the entropy source for key generation and signing.
func WithRandom(r io.Reader) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.rng = r
	}
}

// EdgeRuntime wires sensor → detector → event queue → dispatcher → collector
// and exposes lifecycle hooks for embedding QuakeFlow in a Go service.
type EdgeRuntime struct {
	cfg         *Config
	bootID      string
	obs         ports.Observability
	sensor      ports.Sensor
	detector    *detector.Detector
	queue       ports.EventQueue
	clock       ports.Clock
	identity    *identity.Identity
	dispatcher  *pipeline.Dispatcher
	transmitter ports.Transmitter
	spool       ports.Spool
	archive     ports.Archive
	closers     []io.Closer

	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	errCh       chan error
	stopOnce    sync.Once
}

// NewEdgeRuntime bootstraps the identity and the default adapters selected by
// cfg. A corrupt stored key is fatal: the runtime refuses to start rather
// than replace the registered identity.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &EdgeRuntime{cfg: cfg, bootID: uuid.NewString()}
	ok := false
	defer func() {
		if !ok {
			_ = rt.closeResources()
		}
	}()

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr).
			With("boot_id", rt.bootID, "misurator_id", cfg.Device.MisuratorID)
		rt.obs = observability.NewPromObs(logger, nil)
	}

	store := overrides.store
	if store == nil {
		bolt, err := kvstore.OpenBolt(cfg.Identity.StorePath, cfg.Identity.Namespace)
		if err != nil {
			return nil, fmt.Errorf("open identity store: %w", err)
		}
		rt.closers = append(rt.closers, bolt)
		store = bolt
	}

	id, created, err := identity.Bootstrap(store, overrides.rng)
	if err != nil {
		rt.obs.LogCritical("identity_bootstrap_failed", err)
		return nil, err
	}
	rt.identity = id
	rt.obs.LogInfo("identity_ready",
		ports.Field{Key: "created", Value: created},
		ports.Field{Key: "public_key_hex", Value: id.PublicKeyHex()},
		ports.Field{Key: "public_key_raw_hex", Value: id.RawPublicKeyHex()},
	)
	signer, err := identity.NewSigner(id, overrides.rng, cfg.Identity.SignAttempts)
	if err != nil {
		return nil, err
	}

	pol := cfg.Policy()

	rt.queue = overrides.queue
	if rt.queue == nil {
		rt.queue = queue.NewMemQueue(pol.QueueCapacity, pol.OnQueueFull)
	}

	rt.sensor = overrides.sensor
	if rt.sensor == nil {
		if rt.sensor, err = buildSensor(cfg); err != nil {
			return nil, err
		}
	}

	lnk := overrides.link
	if lnk == nil {
		if lnk, err = buildLink(cfg); err != nil {
			return nil, err
		}
	}

	rt.clock = overrides.clock
	if rt.clock == nil {
		rt.clock = buildClock(cfg)
	}

	rt.transmitter = overrides.transmitter
	if rt.transmitter == nil {
		if rt.transmitter, err = buildTransmitter(cfg); err != nil {
			return nil, err
		}
	}

	if pol.OnDispatchFailure == ports.OnFailureSpool {
		rt.spool = overrides.spool
		if rt.spool == nil {
			sp, err := wal.NewFileSpool(cfg.Spool.Dir)
			if err != nil {
				return nil, fmt.Errorf("open spool: %w", err)
			}
			rt.spool = sp
		}
	}

	rt.archive = overrides.archive
	if rt.archive == nil {
		if rt.archive, err = buildArchive(cfg); err != nil {
			return nil, err
		}
	}

	rt.dispatcher, err = pipeline.NewDispatcher(pipeline.DispatchDeps{
		Queue:       rt.queue,
		Link:        lnk,
		Clock:       rt.clock,
		Signer:      signer,
		Transmitter: rt.transmitter,
		Spool:       rt.spool,
		Archive:     rt.archive,
	}, pipeline.DispatchConfig{
		MisuratorID: cfg.Device.MisuratorID,
		BootID:      rt.bootID,
		Policy:      pol,
	}, rt.obs)
	if err != nil {
		return nil, err
	}

	rt.detector = detector.New(cfg.Detector.Config)
	ok = true
	return rt, nil
}

func buildSensor(cfg *Config) (ports.Sensor, error) {
	if cfg.Sensor.Kind != "opcua" {
		return sensor.NewSimulated(cfg.Sensor.Simulated), nil
	}
	s, err := opcua.NewSensor(cfg.OPCUA)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildLink(cfg *Config) (ports.Link, error) {
	if cfg.Link.Mode == "static" {
		return link.NewStaticLink(), nil
	}
	l, err := link.NewNetLink(cfg.Link.Config)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func buildClock(cfg *Config) ports.Clock {
	if cfg.Clock.Mode == "system" {
		return clock.NewSystemClock()
	}
	return clock.NewNTPClock(cfg.Clock.NTPConfig)
}

func buildTransmitter(cfg *Config) (ports.Transmitter, error) {
	if cfg.Dispatch.Transport == "mqtt" {
		m, err := transport.DialMQTT(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	h, err := transport.NewHTTPTransmitter(cfg.Collector)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// buildArchive returns a nil Archive when archiving is disabled.
func buildArchive(cfg *Config) (ports.Archive, error) {
	switch cfg.Archive.Kind {
	case "sqlite":
		a, err := sink.OpenSQLite(cfg.Archive.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		return a, nil
	case "timescale":
		a, err := sink.OpenTimescale(cfg.Archive.DSN, cfg.Archive.Table)
		if err != nil {
			return nil, fmt.Errorf("open timescale archive: %w", err)
		}
		return a, nil
	default:
		return nil, nil
	}
}

// BootID identifies this process lifetime in logs and archive rows.
func (e *EdgeRuntime) BootID() string { return e.bootID }

// PublicKeyHex is the PKIX DER public key to register with the collector.
func (e *EdgeRuntime) PublicKeyHex() string { return e.identity.PublicKeyHex() }

// RawPublicKeyHex is the same key as raw X‖Y.
func (e *EdgeRuntime) RawPublicKeyHex() string { return e.identity.RawPublicKeyHex() }

// State reports the dispatcher's uplink state.
func (e *EdgeRuntime) State() LinkState { return e.dispatcher.State() }

// Start launches the detect and dispatch pipelines plus the metrics server.
// It returns immediately; call Run to block on a context instead.
func (e *EdgeRuntime) Start(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}
	if e.cancel != nil {
		return fmt.Errorf("edge runtime already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.errCh = make(chan error, 2)

	detectCfg := pipeline.DetectConfig{
		Period:               e.cfg.Detector.Period,
		StabilizationSamples: e.cfg.Detector.StabilizationSamples,
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := pipeline.RunDetectPipeline(runCtx, e.sensor, e.detector, e.queue, e.clock, detectCfg, e.obs); err != nil {
			e.errCh <- err
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := e.dispatcher.Run(runCtx); err != nil {
			e.errCh <- err
		}
	}()

	e.startMetrics()
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled or a pipeline
// fails fatally, then shuts down.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-e.errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, e.Shutdown(shutdownCtx))
}

// Shutdown stops both pipelines, the metrics server and releases storage.
// The identity and spool stay on disk for the next boot.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	var errs []error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("pipelines did not stop: %w", ctx.Err()))
		}

		if e.gaugeStopCh != nil {
			close(e.gaugeStopCh)
		}
		if e.metricsSrv != nil {
			if err := e.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		if err := e.closeResources(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (e *EdgeRuntime) closeResources() error {
	var errs []error
	if c, ok := e.transmitter.(interface{ Close() }); ok {
		c.Close()
	}
	if e.spool != nil {
		if err := e.spool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// statusRouter serves Prometheus metrics plus liveness and readiness probes.
func (e *EdgeRuntime) statusRouter() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", e.handleReady).Methods(http.MethodGet)
	return handlers.RecoveryHandler()(r)
}

func (e *EdgeRuntime) startMetrics() {
	e.metricsSrv = &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           e.statusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.obs.LogError("metrics_server_exited", err)
		}
	}()

	e.gaugeStopCh = make(chan struct{})
	go e.recordResourceGauges(e.gaugeStopCh, time.Second)
}

func (e *EdgeRuntime) handleReady(w http.ResponseWriter, _ *http.Request) {
	state := e.dispatcher.State()
	if state != domain.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write([]byte(state.String()))
}

func (e *EdgeRuntime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.obs.SetGauge(ports.QueueLength, float64(e.queue.Len()))
			if e.spool != nil {
				e.obs.SetGauge(ports.SpoolSizeBytes, float64(e.spool.Stats().SizeBytes))
			}
		}
	}
}
