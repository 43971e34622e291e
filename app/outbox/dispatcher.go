package outbox

import (
	"fmt"
	"time"

	"conductor/app/config"
	"conductor/app/objects"
	"conductor/pkg/contextx"
	"conductor/pkg/log"
)

// Sink delivers one kind of intent. Delivery is at least once, sinks must
// tolerate repeats.
type Sink interface {
	Deliver(ctx *contextx.Context, intent *objects.OutboxIntent) error
}

type SinkFunc func(ctx *contextx.Context, intent *objects.OutboxIntent) error

func (f SinkFunc) Deliver(ctx *contextx.Context, intent *objects.OutboxIntent) error {
	return f(ctx, intent)
}

// Dispatcher drains committed intents to their sinks.
type Dispatcher struct {
	sinks       map[string]Sink
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewDispatcher(cfg config.OutboxConfig) *Dispatcher {
	return &Dispatcher{
		sinks:       map[string]Sink{},
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
	}
}

func (d *Dispatcher) Register(kind string, sink Sink) {
	d.sinks[kind] = sink
}

// Drain delivers one batch of pending intents, oldest first, and returns
// how many were sent.
func (d *Dispatcher) Drain(ctx *contextx.Context) (int, error) {
	intents, err := objects.QueryPendingIntents(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, intent := range intents {
		deliverErr := d.deliver(ctx, intent)
		if deliverErr == nil {
			if err := intent.MarkSent(ctx); err != nil {
				return sent, err
			}
			sent++
			continue
		}
		log.Warnf(ctx, "deliver %s intent %s (%s) failed: %s", intent.Kind, intent.ID, intent.Event, deliverErr.Error())
		if err := intent.MarkFailed(ctx, deliverErr, d.maxAttempts); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx *contextx.Context, intent *objects.OutboxIntent) (err error) {
	sink, ok := d.sinks[intent.Kind]
	if !ok {
		return fmt.Errorf("no sink for %s intents", intent.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Deliver(ctx, intent)
}

// Run drains until ctx is done. A full batch is followed immediately by the
// next one.
func (d *Dispatcher) Run(ctx *contextx.Context) {
	log.Infof(ctx, "outbox dispatcher started, interval %s", d.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "outbox dispatcher stopped")
			return
		case <-timer.C:
		}
		next := d.interval
		sent, err := d.Drain(ctx)
		if err != nil {
			log.Errorf(ctx, "drain outbox failed: %s", err.Error())
		} else if sent == d.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}
