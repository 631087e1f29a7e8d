package events

import (
	"context"
	"errors"
	"myndis-engine/src/logger"
	"sync"
	"time"
)

var (
	ErrQueueFull       = errors.New("event queue is full")
	ErrPublisherClosed = errors.New("event publisher is closed")
)

// AsyncPublisher queues events and hands them to next from a single drain
// goroutine, so callers never wait on the broker. Events that do not fit in
// the queue are dropped with ErrQueueFull.
type AsyncPublisher struct {
	next    Publisher
	log     *logger.Logger
	timeout time.Duration
	queue   chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts the drain goroutine. Each delivery to next gets
// its own timeout, detached from the caller's context.
func NewAsyncPublisher(next Publisher, log *logger.Logger, size int, timeout time.Duration) *AsyncPublisher {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p := &AsyncPublisher{
		next:    next,
		log:     log.With("service", "AsyncPublisher"),
		timeout: timeout,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go p.drain()
	return p
}

func (p *AsyncPublisher) drain() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, ev); err != nil {
			p.log.Warn("Failed to deliver event", "type", ev.Type, "account_id", ev.AccountID, "error", err)
		}
		cancel()
	}
}

func (p *AsyncPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, waits for the queue to drain and closes
// next.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
