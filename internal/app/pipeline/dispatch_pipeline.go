package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

var (
	ErrSpoolFull  = errors.New("spool full")
	errStopReplay = errors.New("stop replay")
)

// DispatchDeps are the collaborators owned by the dispatcher. Spool and
// Archive are optional.
type DispatchDeps struct {
	Queue       ports.EventQueue
	Link        ports.Link
	Clock       ports.Clock
	Signer      ports.Signer
	Transmitter ports.Transmitter
	Spool       ports.Spool
	Archive     ports.Archive
}

type DispatchConfig struct {
	MisuratorID int
	BootID      string
	Policy      ports.Policy
}

// Dispatcher owns the uplink state machine and turns queued events into
// signed reports, one transmission attempt each.
type Dispatcher struct {
	deps  DispatchDeps
	cfg   DispatchConfig
	obs   ports.Observability
	state atomic.Int32
}

func NewDispatcher(deps DispatchDeps, cfg DispatchConfig, obs ports.Observability) (*Dispatcher, error) {
	if deps.Queue == nil || deps.Link == nil || deps.Clock == nil || deps.Signer == nil || deps.Transmitter == nil {
		return nil, errors.New("dispatcher requires queue, link, clock, signer and transmitter")
	}
	pol := &cfg.Policy
	if pol.ReconnectBackoff <= 0 {
		pol.ReconnectBackoff = 5 * time.Second
	}
	if pol.SyncBackoff <= 0 {
		pol.SyncBackoff = 2 * time.Second
	}
	if pol.LinkCheckInterval <= 0 {
		pol.LinkCheckInterval = 5 * time.Second
	}
	if pol.OnDispatchFailure == "" {
		pol.OnDispatchFailure = ports.OnFailureDrop
	}
	if pol.UnsyncedPolicy == "" {
		pol.UnsyncedPolicy = ports.UnsyncedHold
	}

	d := &Dispatcher{deps: deps, cfg: cfg, obs: obs}
	d.setState(domain.Disconnected)
	return d, nil
}

func (d *Dispatcher) State() domain.LinkState {
	return domain.LinkState(d.state.Load())
}

func (d *Dispatcher) setState(s domain.LinkState) {
	prev := domain.LinkState(d.state.Swap(int32(s)))
	d.obs.SetGauge(ports.LinkState, float64(s))
	if prev != s {
		d.obs.LogInfo("link_state_changed",
			ports.Field{Key: "from", Value: prev.String()},
			ports.Field{Key: "to", Value: s.String()},
		)
	}
}

// Run drives the state machine until ctx is cancelled or the queue closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if d.State() != domain.Ready {
			if err := d.establish(ctx); err != nil {
				return nil
			}
			d.replaySpool(ctx)
		}

		evt, err := d.take(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ports.ErrQueueClosed):
			return nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// idle tick
			if !d.deps.Link.Connected() {
				d.setState(domain.Connecting)
				continue
			}
			d.replaySpool(ctx)
			continue
		default:
			return nil
		}

		d.handle(ctx, evt)
	}
}

func (d *Dispatcher) take(ctx context.Context) (domain.SeismicEvent, error) {
	tctx, cancel := context.WithTimeout(ctx, d.cfg.Policy.LinkCheckInterval)
	defer cancel()
	evt, err := d.deps.Queue.Take(tctx)
	d.obs.SetGauge(ports.QueueLength, float64(d.deps.Queue.Len()))
	return evt, err
}

// handle delivers one event, holding it across reconnects when the policy
// asks for that.
func (d *Dispatcher) handle(ctx context.Context, evt domain.SeismicEvent) {
	for {
		if d.State() == domain.Ready && d.deps.Link.Connected() {
			d.deliver(ctx, evt)
			return
		}
		if d.State() == domain.Ready {
			d.setState(domain.Connecting)
		}
		if d.cfg.Policy.UnsyncedPolicy == ports.UnsyncedDrop {
			d.obs.IncCounter(ports.DispatchDropTotal, 1)
			d.obs.LogWarn("event_dropped_not_ready",
				ports.Field{Key: "ratio", Value: evt.MagnitudeRatio},
				ports.Field{Key: "state", Value: d.State().String()},
			)
			return
		}
		if err := d.establish(ctx); err != nil {
			return
		}
		d.replaySpool(ctx)
	}
}

// establish walks CONNECTING and TIME_SYNCING until READY. It only fails when
// ctx is done.
func (d *Dispatcher) establish(ctx context.Context) error {
	pol := d.cfg.Policy
	for {
		d.setState(domain.Connecting)
		for {
			err := d.deps.Link.Connect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.obs.LogWarn("link_connect_failed", ports.Field{Key: "error", Value: err.Error()})
			if err := d.backoff(ctx, pol.ReconnectBackoff); err != nil {
				return err
			}
		}

		d.setState(domain.TimeSyncing)
		for !d.deps.Clock.Synced() {
			err := d.deps.Clock.Sync(ctx)
			if err == nil {
				d.obs.LogInfo("clock_synced", ports.Field{Key: "wall", Value: d.deps.Clock.Now().UTC().Format(time.RFC3339)})
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.obs.LogWarn("clock_sync_failed", ports.Field{Key: "error", Value: err.Error()})
			if err := d.backoff(ctx, pol.SyncBackoff); err != nil {
				return err
			}
			if !d.deps.Link.Connected() {
				break
			}
		}
		if d.deps.Clock.Synced() {
			d.setState(domain.Ready)
			return nil
		}
	}
}

// backoff sleeps for wait and, under the drop policy, discards events that arrive
// while the uplink is not ready.
func (d *Dispatcher) backoff(ctx context.Context, wait time.Duration) error {
	if d.cfg.Policy.UnsyncedPolicy == ports.UnsyncedDrop {
		d.discardPending()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) discardPending() {
	done, cancel := context.WithCancel(context.Background())
	cancel()
	for {
		evt, err := d.deps.Queue.Take(done)
		if err != nil {
			return
		}
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.obs.LogWarn("event_dropped_not_ready",
			ports.Field{Key: "ratio", Value: evt.MagnitudeRatio},
			ports.Field{Key: "state", Value: d.State().String()},
		)
	}
}

// Reconstruct converts a monotonic detection instant into unix seconds using
// the wall clock read at dispatch. Both terms are truncated to whole seconds
// before subtracting: floor(wall) - floor(monoNow - detectedAt).
func Reconstruct(detectedAt, monoNow time.Duration, wallNow time.Time) int64 {
	age := monoNow - detectedAt
	if age < 0 {
		age = 0
	}
	return wallNow.Unix() - int64(age/time.Second)
}

func (d *Dispatcher) deliver(ctx context.Context, evt domain.SeismicEvent) {
	ts := Reconstruct(evt.DetectedAt, d.deps.Clock.Monotonic(), d.deps.Clock.Now())
	value := evt.FixedPointValue()

	sig, err := d.deps.Signer.Sign(domain.SigningMessage(value, ts))
	if err != nil {
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.obs.LogCritical("sign_failed", err,
			ports.Field{Key: "value", Value: value},
			ports.Field{Key: "device_timestamp", Value: ts},
		)
		return
	}

	p := domain.SignedPayload{
		Value:           value,
		MisuratorID:     d.cfg.MisuratorID,
		DeviceTimestamp: ts,
		SignatureHex:    sig,
	}

	receipt, err := d.send(ctx, p)
	if err == nil {
		d.obs.IncCounter(ports.DispatchSentTotal, 1)
		d.obs.LogInfo("report_sent",
			ports.Field{Key: "value", Value: value},
			ports.Field{Key: "device_timestamp", Value: ts},
			ports.Field{Key: "status", Value: receipt.Status},
		)
		d.record(ctx, p, ports.OutcomeSent, receipt.Status)
		return
	}

	d.obs.IncCounter(ports.DispatchFailTotal, 1)
	d.obs.LogError("report_send_failed", err,
		ports.Field{Key: "value", Value: value},
		ports.Field{Key: "device_timestamp", Value: ts},
		ports.Field{Key: "transport", Value: d.deps.Transmitter.Name()},
	)
	d.onFailure(ctx, p, err)

	if !d.deps.Link.Connected() {
		d.setState(domain.Connecting)
	}
}

func (d *Dispatcher) send(ctx context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	start := time.Now()
	receipt, err := d.deps.Transmitter.Send(ctx, p)
	d.obs.ObserveLatency(ports.DispatchLatencySec, time.Since(start).Seconds())
	return receipt, err
}

func (d *Dispatcher) onFailure(ctx context.Context, p domain.SignedPayload, sendErr error) {
	// A rejected report fails the same way on every resend.
	if ports.IsPermanent(sendErr) {
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.obs.LogWarn("report_rejected",
			ports.Field{Key: "value", Value: p.Value},
			ports.Field{Key: "error", Value: sendErr.Error()},
		)
		d.record(ctx, p, ports.OutcomeFailed, sendErr.Error())
		return
	}
	if d.cfg.Policy.OnDispatchFailure != ports.OnFailureSpool || d.deps.Spool == nil {
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.record(ctx, p, ports.OutcomeFailed, sendErr.Error())
		return
	}

	if limit := d.cfg.Policy.MaxSpoolBytes; limit > 0 && d.deps.Spool.Stats().SizeBytes >= limit {
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.obs.LogError("spool_full_drop", fmt.Errorf("%w: size=%d limit=%d", ErrSpoolFull, d.deps.Spool.Stats().SizeBytes, limit))
		d.record(ctx, p, ports.OutcomeFailed, sendErr.Error())
		return
	}

	id, err := d.deps.Spool.Append(&p)
	if err != nil {
		d.obs.IncCounter(ports.DispatchDropTotal, 1)
		d.obs.LogCritical("spool_append_failed", err)
		d.record(ctx, p, ports.OutcomeFailed, sendErr.Error())
		return
	}
	d.obs.IncCounter(ports.SpooledTotal, 1)
	d.obs.SetGauge(ports.SpoolSizeBytes, float64(d.deps.Spool.Stats().SizeBytes))
	d.obs.LogInfo("report_spooled", ports.Field{Key: "spool_id", Value: uint64(id)})
	d.record(ctx, p, ports.OutcomeSpooled, sendErr.Error())
}

// replaySpool resends spooled reports oldest first and stops at the first
// transient failure; their signatures and timestamps are kept as originally
// built. Entries the collector rejects outright are committed and dropped.
func (d *Dispatcher) replaySpool(ctx context.Context) {
	sp := d.deps.Spool
	if sp == nil {
		return
	}
	stats := sp.Stats()
	if stats.LatestAppended < stats.OldestUncommitted {
		return
	}
	if !d.deps.Link.Connected() {
		return
	}

	replayed := 0
	err := sp.Iterate(stats.OldestUncommitted, func(id ports.SpoolEntryID, p *domain.SignedPayload) error {
		if ctx.Err() != nil {
			return errStopReplay
		}
		receipt, err := d.send(ctx, *p)
		if err != nil {
			d.obs.IncCounter(ports.DispatchFailTotal, 1)
			if ports.IsPermanent(err) {
				if cerr := sp.Commit(id); cerr != nil {
					return cerr
				}
				d.obs.IncCounter(ports.DispatchDropTotal, 1)
				d.obs.LogWarn("spool_entry_rejected",
					ports.Field{Key: "spool_id", Value: uint64(id)},
					ports.Field{Key: "error", Value: err.Error()},
				)
				d.record(ctx, *p, ports.OutcomeFailed, err.Error())
				return nil
			}
			d.obs.LogWarn("spool_replay_failed",
				ports.Field{Key: "spool_id", Value: uint64(id)},
				ports.Field{Key: "error", Value: err.Error()},
			)
			return errStopReplay
		}
		if err := sp.Commit(id); err != nil {
			return err
		}
		replayed++
		d.obs.IncCounter(ports.ReplayedTotal, 1)
		d.record(ctx, *p, ports.OutcomeReplay, receipt.Status)
		return nil
	})
	if err != nil && !errors.Is(err, errStopReplay) {
		d.obs.LogError("spool_replay_error", err)
	}
	d.obs.SetGauge(ports.SpoolSizeBytes, float64(sp.Stats().SizeBytes))
	if replayed > 0 {
		d.obs.LogInfo("spool_replayed", ports.Field{Key: "count", Value: replayed})
	}
}

func (d *Dispatcher) record(ctx context.Context, p domain.SignedPayload, outcome, detail string) {
	if d.deps.Archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := d.deps.Archive.Record(actx, ports.ArchiveRecord{
		BootID:     d.cfg.BootID,
		Payload:    p,
		Outcome:    outcome,
		Detail:     detail,
		RecordedAt: d.deps.Clock.Now(),
	})
	if err != nil {
		d.obs.LogWarn("archive_record_failed",
			ports.Field{Key: "archive", Value: d.deps.Archive.Name()},
			ports.Field{Key: "error", Value: err.Error()},
		)
	}
}
