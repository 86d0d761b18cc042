package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
)

// Publisher is the side of the bus the state machine sees.
type Publisher interface {
	Publish(evt Event)
}

// Bus is a non-blocking event bus that fans out events to subscribers.
// The event channel is buffered. If it is full, events are dropped with a warning.
type Bus struct {
	ch          chan Event
	subscribers []chan Event
	mu          sync.RWMutex
	logger      *slog.Logger
	drops       atomic.Uint64
	started     atomic.Bool
	done        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufferSize),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins dispatching events to subscribers. Call in a goroutine.
// After Stop, events still buffered are delivered before Start returns.
func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	defer close(b.stopped)
	for {
		select {
		case evt := <-b.ch:
			b.fanout(evt)
		case <-b.done:
			b.flush()
			return
		}
	}
}

func (b *Bus) flush() {
	for {
		select {
		case evt := <-b.ch:
			b.fanout(evt)
		default:
			return
		}
	}
}

func (b *Bus) fanout(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
			b.logger.Warn("subscriber event buffer full, dropping event",
				"event_type", string(evt.Type))
		}
	}
}

// Stop shuts down the event bus, flushing buffered events to subscribers.
// Safe to call more than once.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.started.CompareAndSwap(false, true) {
			// Start never ran.
			b.flush()
			close(b.stopped)
			return
		}
		<-b.stopped
	})
}

// Publish sends an event to the bus. Non-blocking: drops if the buffer is
// full or the bus is stopped.
func (b *Bus) Publish(evt Event) {
	select {
	case <-b.done:
		b.logger.Debug("event bus stopped, dropping event", "event_type", string(evt.Type))
		return
	default:
	}

	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	select {
	case b.ch <- evt:
	default:
		n := b.drops.Add(1)
		metrics.EventBufferDrops.Inc()
		b.logger.Warn("event bus buffer full, dropping event",
			"event_type", string(evt.Type),
			"total_drops", n)
	}
}

// Subscribe returns a new channel that receives all events from the bus.
// The caller should read from the channel to avoid drops.
func (b *Bus) Subscribe(bufferSize int) chan Event {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan Event, bufferSize)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel from the bus and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Drops returns the total number of dropped events.
func (b *Bus) Drops() uint64 {
	return b.drops.Load()
}
