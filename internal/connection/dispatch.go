package connection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sadnxai/chatlink/internal/metrics"
	"github.com/sadnxai/chatlink/internal/protocol"
	"github.com/sadnxai/chatlink/internal/queue"
)

// delivery is one inbound event or state change and the subscribers it goes
// to, captured at the moment the manager processed it.
type delivery struct {
	subs      []*subscriber
	msg       protocol.InboundMessage
	connected bool
}

// dispatcher runs subscriber callbacks in delivery order on its own goroutine.
type dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	jobs    *queue.Buffer[delivery]
	wg      sync.WaitGroup
}

func newDispatcher(logger *slog.Logger, m *metrics.Collector) *dispatcher {
	return &dispatcher{
		logger:  logger,
		metrics: m,
		jobs:    queue.New[delivery](64),
	}
}

func (d *dispatcher) start() {
	d.wg.Add(1)
	go d.run()
}

// enqueue never blocks the caller.
func (d *dispatcher) enqueue(job delivery) {
	if len(job.subs) == 0 {
		return
	}
	d.jobs.Send(job)
}

// stop closes the job queue. Queued jobs still run; their subscribers were
// deactivated by the registry reset that precedes stop.
func (d *dispatcher) stop() {
	d.jobs.Close()
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		job, ok := d.jobs.Receive()
		if !ok {
			return
		}
		for _, sub := range job.subs {
			if !sub.active.Load() {
				continue
			}
			d.invoke(sub, job)
		}
	}
}

// invoke calls one subscriber inside its own recover boundary.
func (d *dispatcher) invoke(sub *subscriber, job delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanic()
			if sub.state != nil {
				d.logger.Warn("connection state handler panicked",
					"connected", job.connected,
					"panic", fmt.Sprint(r),
				)
				return
			}
			d.logger.Warn("event handler panicked",
				"type", job.msg.Type,
				"subscription", sub.eventType,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if sub.state != nil {
		sub.state(job.connected)
		return
	}
	sub.handler(job.msg)
}
