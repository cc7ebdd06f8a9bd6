// Package notify pushes call status changes to staff devices.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Notification describes one call status change worth telling staff about.
type Notification struct {
	Phone     string
	Status    string
	Extension string
}

type Notifier interface {
	SendCallStatusNotification(ctx context.Context, n Notification) error
}

// Noop is used when no provider is configured.
type Noop struct {
	Log *slog.Logger
}

func (n Noop) SendCallStatusNotification(_ context.Context, msg Notification) error {
	if n.Log != nil {
		n.Log.Debug("notification provider not configured, skipping", "phone", msg.Phone, "status", msg.Status)
	}
	return nil
}

// Observer receives the outcome of every background send.
type Observer func(status string, err error)

// Async sends in the background. Send never blocks the caller and never
// reports the provider's failure to it; failures are logged.
type Async struct {
	next    Notifier
	log     *slog.Logger
	timeout time.Duration
	observe Observer
}

func NewAsync(next Notifier, log *slog.Logger, timeout time.Duration, observe Observer) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Async{next: next, log: log, timeout: timeout, observe: observe}
}

// Send starts the delivery and returns a channel closed when it finishes.
func (a *Async) Send(ctx context.Context, n Notification) <-chan struct{} {
	done := make(chan struct{})
	// Detached so the send outlives the request that triggered it.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	go func() {
		defer close(done)
		defer cancel()
		err := a.next.SendCallStatusNotification(sendCtx, n)
		if err != nil {
			a.log.Warn("call notification failed", "phone", n.Phone, "status", n.Status, "error", err)
		}
		if a.observe != nil {
			a.observe(n.Status, err)
		}
	}()
	return done
}

// SendCallStatusNotification lets Async stand in wherever a Notifier is expected.
func (a *Async) SendCallStatusNotification(ctx context.Context, n Notification) error {
	a.Send(ctx, n)
	return nil
}
