package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Bus carries "claims changed" signals from writers to feed loops.
// Signals carry no payload; subscribers re-query the store.
type Bus interface {
	Publish(ctx context.Context) error
	// Subscribe returns a channel that receives at least one value after
	// every Publish. Signals may coalesce. cancel releases the subscription.
	Subscribe(ctx context.Context) (ch <-chan struct{}, cancel func(), err error)
}

// LocalBus fans signals out inside one process.
type LocalBus struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan struct{}]struct{})}
}

func (b *LocalBus) Publish(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		notifyOnce(ch)
	}
	return nil
}

func (b *LocalBus) Subscribe(context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// RedisBus signals over Redis pub/sub so every API replica wakes its feeds.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context) error {
	if err := b.rdb.Publish(ctx, b.channel, "changed").Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ps := b.rdb.Subscribe(ctx, b.channel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan struct{}, 1)
	msgs := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				notifyOnce(out)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

// notifyOnce leaves at most one pending signal in ch.
func notifyOnce(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
