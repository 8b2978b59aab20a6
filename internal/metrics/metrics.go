package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatlink"

// Request outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
)

// Collector holds every metric the channel and the development server emit.
type Collector struct {
	connected         prometheus.Gauge
	connectAttempts   *prometheus.CounterVec
	reconnectsSched   prometheus.Counter
	reconnectDelay    prometheus.Histogram
	queueDepth        prometheus.Gauge
	pendingRequests   prometheus.Gauge
	requestOutcomes   *prometheus.CounterVec
	inboundFrames     *prometheus.CounterVec
	parseErrors       prometheus.Counter
	handlerPanics     prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	activeConnections prometheus.Gauge
}

// New creates a Collector and registers it on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connected",
			Help:      "1 while the session channel transport is open.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connect_attempts_total",
			Help:      "Transport open attempts by result.",
		}, []string{"result"}),
		reconnectsSched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after an abnormal close.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnects.",
			Buckets:   []float64{1, 2, 4, 8, 16, 30},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "outbound_queue_depth",
			Help:      "Messages waiting for an open transport.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "pending_requests",
			Help:      "Requests awaiting a correlated response.",
		}),
		requestOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "requests_total",
			Help:      "Completed request/response exchanges by outcome.",
		}, []string{"outcome"}),
		inboundFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "inbound_frames_total",
			Help:      "Decoded inbound frames by event type.",
		}, []string{"type"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "parse_errors_total",
			Help:      "Inbound frames dropped as malformed.",
		}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "handler_panics_total",
			Help:      "Subscriber callbacks that panicked.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_channels",
			Help:      "Open session channels on the development server.",
		}),
	}

	collectors := []prometheus.Collector{
		c.connected, c.connectAttempts, c.reconnectsSched, c.reconnectDelay,
		c.queueDepth, c.pendingRequests, c.requestOutcomes, c.inboundFrames,
		c.parseErrors, c.handlerPanics, c.httpRequests, c.httpDuration,
		c.activeConnections,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetConnected records the transport state.
func (c *Collector) SetConnected(open bool) {
	if c == nil {
		return
	}
	if open {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// ConnectAttempt records the result of a transport open.
func (c *Collector) ConnectAttempt(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// ReconnectScheduled records a scheduled reconnect and its delay.
func (c *Collector) ReconnectScheduled(delay time.Duration) {
	if c == nil {
		return
	}
	c.reconnectsSched.Inc()
	c.reconnectDelay.Observe(delay.Seconds())
}

// SetQueueDepth records the outbound queue length.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// SetPending records the pending request count.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pendingRequests.Set(float64(n))
}

// RequestDone records how a request/response exchange ended.
func (c *Collector) RequestDone(outcome string) {
	if c == nil {
		return
	}
	c.requestOutcomes.WithLabelValues(outcome).Inc()
}

// InboundFrame counts a decoded frame.
func (c *Collector) InboundFrame(eventType string) {
	if c == nil {
		return
	}
	c.inboundFrames.WithLabelValues(eventType).Inc()
}

// ParseError counts a dropped malformed frame.
func (c *Collector) ParseError() {
	if c == nil {
		return
	}
	c.parseErrors.Inc()
}

// HandlerPanic counts a recovered subscriber panic.
func (c *Collector) HandlerPanic() {
	if c == nil {
		return
	}
	c.handlerPanics.Inc()
}

// HTTPRequest records one served HTTP request.
func (c *Collector) HTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	c.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	c.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ChannelOpened and ChannelClosed track server-side channels.
func (c *Collector) ChannelOpened() {
	if c == nil {
		return
	}
	c.activeConnections.Inc()
}

func (c *Collector) ChannelClosed() {
	if c == nil {
		return
	}
	c.activeConnections.Dec()
}
