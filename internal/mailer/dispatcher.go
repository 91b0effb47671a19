package mailer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Dispatcher queues messages and sends them from a single worker so callers
// never wait on delivery. Failures are logged and dropped.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *slog.Logger
	timeout time.Duration

	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type DispatcherConfig struct {
	BufferSize    int
	RatePerSecond int
	SendTimeout   time.Duration
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
		logger:  logger,
		timeout: cfg.SendTimeout,
		ch:      make(chan Message, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.failed.Add(1)
		d.logger.Error("email throttled past deadline", "to", msg.To, "subject", msg.Subject, "err", err)
		return
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("failed to send email", "to", msg.To, "subject", msg.Subject, "err", err)
		return
	}
	d.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
}

// Enqueue hands msg to the worker and returns immediately. A full queue
// drops the message.
func (d *Dispatcher) Enqueue(msg Message) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- msg:
	default:
		d.dropped.Add(1)
		d.logger.Warn("email queue full, dropping message", "to", msg.To, "subject", msg.Subject)
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
func (d *Dispatcher) Failed() uint64  { return d.failed.Load() }
