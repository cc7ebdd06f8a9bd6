package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"call-inbox/internal/claims"
	"call-inbox/internal/metrics"
)

// Lister is the read side of the claim manager.
type Lister interface {
	ListActive(ctx context.Context, f claims.ListFilter) ([]claims.CallClaim, error)
}

// Sink writes frames to one client.
type Sink interface {
	Send(ctx context.Context, f Frame) error
}

// Publisher streams full snapshots of the active inbox to one client per Run.
// Each connection owns its ticker; there is no shared broadcast hub.
type Publisher struct {
	Source Lister
	// Interval between refreshes. Defaults to 2s.
	Interval time.Duration
	// HeartbeatEvery sends a heartbeat frame on every Nth tick. Defaults to 5.
	HeartbeatEvery int
	Limit          int
	// SkipUnchanged suppresses update frames identical to the previous one.
	SkipUnchanged bool
	// Bus, when set, triggers an extra refresh after each write.
	Bus     Bus
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Run blocks until ctx ends or the sink fails. It returns nil on ctx
// cancellation and the sink error otherwise. No query runs after Run returns.
func (p *Publisher) Run(ctx context.Context, sink Sink) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	every := p.HeartbeatEvery
	if every <= 0 {
		every = 5
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	p.Metrics.FeedOpened()
	defer p.Metrics.FeedClosed()

	if err := p.send(ctx, sink, Frame{Type: TypeConnected}); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if p.Bus != nil {
		ch, unsubscribe, err := p.Bus.Subscribe(ctx)
		if err != nil {
			log.Warn("feed change subscription failed, polling only", "error", err)
		} else {
			wake = ch
			defer unsubscribe()
		}
	}

	var (
		tick int
		last []byte
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			tick++
			if err := p.refresh(ctx, sink, log, &last); err != nil {
				return err
			}
			if tick%every == 0 {
				if err := p.send(ctx, sink, Frame{Type: TypeHeartbeat}); err != nil {
					return err
				}
			}

		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if err := p.refresh(ctx, sink, log, &last); err != nil {
				return err
			}
		}
	}
}

// refresh runs the inbox query and sends an update frame. Query failures are
// logged and swallowed so the next tick retries.
func (p *Publisher) refresh(ctx context.Context, sink Sink, log *slog.Logger, last *[]byte) error {
	if ctx.Err() != nil {
		return nil
	}
	calls, err := p.Source.ListActive(ctx, claims.ListFilter{Limit: p.Limit})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.Metrics.RecordTick("error")
		log.Warn("feed refresh failed", "error", err)
		return nil
	}

	if p.SkipUnchanged {
		snapshot, err := json.Marshal(calls)
		if err == nil {
			if *last != nil && bytes.Equal(*last, snapshot) {
				p.Metrics.RecordTick("unchanged")
				return nil
			}
			*last = snapshot
		}
	}
	p.Metrics.RecordTick("ok")
	return p.send(ctx, sink, Frame{Type: TypeUpdate, Calls: calls})
}

func (p *Publisher) send(ctx context.Context, sink Sink, f Frame) error {
	if err := sink.Send(ctx, f); err != nil {
		return err
	}
	p.Metrics.RecordFrame(f.Type)
	return nil
}
