package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls delivery. With Async false every Emit reaches the sink
// before returning.
type Config struct {
	Async      bool
	BufferSize int
	// DropIfFull discards info and warning events when the buffer is full.
	// Critical events always wait for room, even past the emitter's
	// cancellation.
	DropIfFull bool
}

// queued keeps the emitter's context values without its cancellation, so
// a sink still sees request-scoped values after the request returns.
type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher fans events out to one Sink, inline or through a buffered
// worker.
type Dispatcher struct {
	cfg  Config
	sink Sink

	queue    chan queued
	stop     chan struct{}
	finished chan struct{}

	dropped  atomic.Uint64
	shutdown atomic.Bool
	stopOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{cfg: cfg, sink: sink}
	if !cfg.Async {
		return d
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	d.queue = make(chan queued, size)
	d.stop = make(chan struct{})
	d.finished = make(chan struct{})
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		default:
			return
		}
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || event == nil || d.shutdown.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.cfg.Async {
		d.sink.Emit(ctx, event)
		return
	}

	q := queued{ctx: context.WithoutCancel(ctx), event: event}
	if event.Severity() == SeverityCritical {
		select {
		case d.queue <- q:
		case <-d.stop:
		}
		return
	}
	if d.cfg.DropIfFull {
		select {
		case d.queue <- q:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- q:
	case <-d.stop:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and delivers what is buffered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.shutdown.Store(true)
		if d.stop == nil {
			return
		}
		close(d.stop)
		<-d.finished
	})
}

// Dropped counts events discarded by a full buffer or a cancelled emitter.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
