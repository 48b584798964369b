package script

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogNotifier publishes change events to the structured log. Useful on its
// own in single-process deployments and as a tap next to the stream bus.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier writing to the given logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the event and always succeeds.
func (n *LogNotifier) Publish(ctx context.Context, event Event) error {
	n.logger.Info().Str("event", event.Name).Interface("payload", event.Payload).Msg("change event")
	return nil
}

// MultiNotifier fans one publish out to several notifiers. The first error
// is returned after every notifier has been attempted.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Publish delivers the event to every notifier.
func (n *MultiNotifier) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, notifier := range n.notifiers {
		if err := notifier.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StreamBus is an in-process stand-in for an external event stream: named
// events fan out to per-subscriber buffered channels. Publish never blocks;
// when a subscriber's buffer is full the event is dropped for that
// subscriber and counted, matching the best-effort delivery contract.
type StreamBus struct {
	mu         sync.RWMutex
	closed     bool
	bufferSize int
	subs       map[string][]chan Event
	dropped    atomic.Uint64
	logger     zerolog.Logger
}

// NewStreamBus creates a bus with the given per-subscriber buffer size.
func NewStreamBus(bufferSize int, logger zerolog.Logger) *StreamBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &StreamBus{
		bufferSize: bufferSize,
		subs:       make(map[string][]chan Event),
		logger:     logger,
	}
}

// Subscribe returns a channel receiving every event published under name.
// The channel closes when the bus closes.
func (b *StreamBus) Subscribe(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[name] = append(b.subs[name], ch)
	return ch
}

// Publish delivers the event to every subscriber of its name without
// blocking.
func (b *StreamBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for _, ch := range b.subs[event.Name] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn().Str("event", event.Name).Msg("subscriber buffer full, event dropped")
		}
	}
	return nil
}

// Dropped reports how many events were dropped on full buffers.
func (b *StreamBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Publishes after Close are no-ops.
func (b *StreamBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	b.subs = nil
}
