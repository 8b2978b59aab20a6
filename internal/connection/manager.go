package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sadnxai/chatlink/internal/metrics"
	"github.com/sadnxai/chatlink/internal/protocol"
	"github.com/sadnxai/chatlink/internal/queue"
)

// Manager owns the channel to one chat session at a time.
type Manager interface {
	// Start launches the manager goroutines. Cancelling ctx stops the manager.
	Start(ctx context.Context) error

	// Stop closes the transport and waits for the manager goroutines.
	Stop(ctx context.Context) error

	// Connect binds the manager to sessionID and returns once the transport
	// is open. subs are registered before the transport opens. Connecting to
	// a different session first tears down everything bound to the old one.
	Connect(ctx context.Context, sessionID string, subs ...Subscription) error

	// Disconnect tears down the binding without reconnecting. Queued sends
	// are dropped, pending requests fail with ErrConnectionClosed and all
	// subscribers are removed.
	Disconnect()

	// Send transmits msg if the transport is open, otherwise queues it.
	Send(msg protocol.OutboundMessage) error

	// SendChat sends a chat message and returns its id.
	SendChat(text string) (string, error)

	// SendAndWait sends msg and waits for the reply carrying the same id.
	// A timeout <= 0 uses the configured RequestTimeout.
	SendAndWait(ctx context.Context, msg protocol.OutboundMessage, timeout time.Duration) (protocol.InboundMessage, error)

	// RequestCurrentState asks the server for a session snapshot and
	// returns the request id.
	RequestCurrentState() (string, error)

	// On subscribes h to events of type t. The On* methods may be called
	// before Start; after Stop they register nothing.
	On(t protocol.InboundType, h Handler) (unsubscribe func())

	// OnAny subscribes h to every event.
	OnAny(h Handler) (unsubscribe func())

	// OnConnectionStateChange subscribes h to open/close notifications.
	OnConnectionStateChange(h StateHandler) (unsubscribe func())

	// IsConnected reports whether the transport is open.
	IsConnected() bool

	// CurrentSessionID returns the bound session, if any.
	CurrentSessionID() (string, bool)

	// Stats returns current statistics.
	Stats() ManagerStats
}

// manager implements the Manager interface.
//
// Everything below the "owned" marker is read and written only by the
// goroutine running loop.
type manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metrics.Collector

	clock     clock
	newClient func(cfg ClientConfig, logger *slog.Logger) Client

	ctx     context.Context
	cancel  context.CancelFunc
	ops     chan func()
	startMu sync.Mutex // held while state may be touched before loop runs
	running atomic.Bool
	wg      sync.WaitGroup

	dispatch *dispatcher

	// owned
	sessionID        string
	bound            bool
	client           Client
	gen              uint64 // bumped whenever the current transport is abandoned
	open             bool
	dialing          bool
	dialIsReconnect  bool
	waiters          []chan error
	reconnectDesired bool
	attempts         int
	reconnectTimer   timer
	reconnectSeq     uint64
	heartbeat        timer
	heartbeatSeq     uint64
	outbound         *queue.Buffer[[]byte]
	pending          *pendingTable
	subs             *registry
}

// NewManager creates a new Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &manager{
		cfg:       cfg,
		logger:    logger,
		metrics:   cfg.Metrics,
		clock:     realClock{},
		newClient: NewClient,
		ctx:       ctx,
		cancel:    cancel,
		ops:       make(chan func()),
		dispatch:  newDispatcher(logger, cfg.Metrics),
		outbound:  queue.New[[]byte](16),
		pending:   newPendingTable(),
		subs:      newRegistry(),
	}
}

// Start begins the manager.
func (m *manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.ctx.Err() != nil {
		return ErrManagerStopped
	}
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}

	context.AfterFunc(ctx, m.cancel)

	m.dispatch.start()

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("channel manager started", "url", m.cfg.URL)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping channel manager")

	m.cancel()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.dispatch.wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, abandoning dispatcher")
		return ctx.Err()
	}

	m.logger.Info("channel manager stopped")
	return nil
}

// loop is the single owner of manager state.
func (m *manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.ctx.Done():
			m.shutdown()
			return
		}
	}
}

// submit hands op to the manager goroutine. It returns once op has been
// accepted; op runs before any later submission.
func (m *manager) submit(op func()) error {
	if !m.running.Load() {
		return ErrManagerStopped
	}
	select {
	case m.ops <- op:
		return nil
	case <-m.ctx.Done():
		return ErrManagerStopped
	}
}

// call runs op on the manager goroutine and waits for it to finish.
func (m *manager) call(op func()) error {
	done := make(chan struct{})
	if err := m.submit(func() {
		op()
		close(done)
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// do runs op as the owner of manager state. Before Start no goroutine owns
// it yet, so op runs inline.
func (m *manager) do(op func()) error {
	m.startMu.Lock()
	if !m.running.Load() {
		defer m.startMu.Unlock()
		if m.ctx.Err() != nil {
			return ErrManagerStopped
		}
		op()
		return nil
	}
	m.startMu.Unlock()
	return m.call(op)
}

// Connect binds the manager to a session and waits for the transport.
func (m *manager) Connect(ctx context.Context, sessionID string, subs ...Subscription) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	result := make(chan error, 1)
	if err := m.submit(func() { m.connect(sessionID, subs, result) }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// The attempt keeps going; only this caller stops waiting.
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrManagerStopped
	}
}

func (m *manager) connect(sessionID string, subs []Subscription, result chan error) {
	if m.bound && m.sessionID != sessionID {
		m.logger.Info("switching session", "from", m.sessionID, "to", sessionID)
		m.teardown()
	}

	for _, s := range subs {
		m.register(newSubscriber(s))
	}

	if m.bound && m.open {
		result <- nil
		return
	}

	m.bound = true
	m.sessionID = sessionID
	m.reconnectDesired = true
	m.cancelReconnect()

	m.waiters = append(m.waiters, result)
	if m.dialing {
		// A caller now waits on this attempt; a failure goes back to it
		// instead of feeding the reconnect schedule.
		m.dialIsReconnect = false
		return
	}
	m.startDial(false)
}

// Disconnect tears down the session binding.
func (m *manager) Disconnect() {
	if err := m.call(m.disconnect); err != nil {
		m.logger.Debug("disconnect skipped", "error", err)
	}
}

func (m *manager) disconnect() {
	if m.bound {
		m.logger.Info("disconnecting", "session_id", m.sessionID)
	}
	m.teardown()
}

// teardown returns the manager to its initial state: normal close,
// empty queue, pending requests rejected, subscribers removed.
func (m *manager) teardown() {
	m.reconnectDesired = false
	m.cancelReconnect()
	m.stopHeartbeat()

	m.gen++
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
		m.client = nil
	}
	if m.open {
		m.open = false
		m.metrics.SetConnected(false)
	}
	if m.dialing {
		m.dialing = false
		m.resolveWaiters(ErrConnectionClosed)
	}

	m.bound = false
	m.sessionID = ""
	m.attempts = 0

	if dropped := m.outbound.Reset(); dropped > 0 {
		m.logger.Debug("dropped queued messages", "count", dropped)
	}
	m.metrics.SetQueueDepth(0)

	if n := m.pending.rejectAll(ErrConnectionClosed); n > 0 {
		m.logger.Debug("rejected pending requests", "count", n)
		for i := 0; i < n; i++ {
			m.metrics.RequestDone(metrics.OutcomeClosed)
		}
	}
	m.metrics.SetPending(0)

	m.subs.reset()
}

// shutdown runs on the manager goroutine after Stop or parent cancellation.
func (m *manager) shutdown() {
	m.running.Store(false)
	m.teardown()
	m.dispatch.stop()
}

// startDial opens a transport for the bound session off the manager
// goroutine and reports back through handleDial.
func (m *manager) startDial(reconnect bool) {
	m.dialing = true
	m.dialIsReconnect = reconnect
	gen := m.gen

	logger := m.logger.With("session_id", m.sessionID)
	c := m.newClient(ClientConfig{
		URL:              sessionURL(m.cfg.URL, m.sessionID),
		WriteTimeout:     m.cfg.WriteTimeout,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		BufferSize:       m.cfg.MessageBufferSize,
	}, logger)

	logger.Debug("opening channel", "reconnect", reconnect, "attempt", m.attempts)

	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.HandshakeTimeout)
		err := c.Connect(ctx)
		cancel()

		if perr := m.submit(func() { m.handleDial(gen, c, err) }); perr != nil && err == nil {
			c.Close()
		}
	}()
}

func (m *manager) handleDial(gen uint64, c Client, err error) {
	if gen != m.gen {
		// Abandoned by a teardown while the handshake ran.
		if err == nil {
			c.Close()
		}
		return
	}
	m.dialing = false
	m.metrics.ConnectAttempt(err == nil)

	if err != nil {
		m.logger.Warn("channel open failed",
			"session_id", m.sessionID,
			"reconnect", m.dialIsReconnect,
			"error", err,
		)
		m.resolveWaiters(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
		if m.dialIsReconnect {
			m.scheduleReconnect()
		}
		return
	}

	m.client = c
	m.open = true
	m.attempts = 0
	m.metrics.SetConnected(true)

	m.wg.Add(1)
	go m.pump(gen, c)

	m.flush()
	m.startHeartbeat()
	m.notifyState(true)
	m.resolveWaiters(nil)

	m.logger.Info("channel open", "session_id", m.sessionID)
}

func (m *manager) resolveWaiters(err error) {
	for _, w := range m.waiters {
		w <- err
	}
	m.waiters = nil
}

// pump forwards frames of one transport to the manager goroutine, then
// reports how the transport ended.
func (m *manager) pump(gen uint64, c Client) {
	defer m.wg.Done()

	for msg := range c.Messages() {
		msg := msg
		if err := m.submit(func() { m.handleFrame(gen, msg) }); err != nil {
			return
		}
	}

	var readErr error
	select {
	case readErr = <-c.Errors():
	default:
	}
	m.submit(func() { m.handleClosed(gen, readErr) })
}

func (m *manager) handleClosed(gen uint64, readErr error) {
	if gen != m.gen || m.client == nil {
		return
	}

	code := CloseCode(readErr)
	m.gen++
	m.client = nil
	m.open = false
	m.stopHeartbeat()
	m.metrics.SetConnected(false)

	m.logger.Info("channel closed",
		"session_id", m.sessionID,
		"code", code,
		"error", readErr,
	)

	m.notifyState(false)

	if code != websocket.CloseNormalClosure && m.reconnectDesired && m.bound {
		m.scheduleReconnect()
	}
}

func (m *manager) scheduleReconnect() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn("max reconnect attempts reached",
			"session_id", m.sessionID,
			"attempts", m.attempts,
		)
		return
	}

	delay := BackoffDelay(m.cfg.ReconnectBaseWait, m.cfg.ReconnectMaxWait, m.attempts)
	m.attempts++
	m.reconnectSeq++
	seq := m.reconnectSeq

	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.submit(func() { m.reconnectFired(seq) })
	})
	m.metrics.ReconnectScheduled(delay)

	m.logger.Info("reconnect scheduled",
		"session_id", m.sessionID,
		"delay", delay,
		"attempt", m.attempts,
	)
}

func (m *manager) reconnectFired(seq uint64) {
	if seq != m.reconnectSeq || m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer = nil
	if !m.reconnectDesired || !m.bound || m.open || m.dialing {
		return
	}
	m.startDial(true)
}

func (m *manager) cancelReconnect() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

func (m *manager) startHeartbeat() {
	m.stopHeartbeat()
	seq := m.heartbeatSeq
	m.heartbeat = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.submit(func() { m.heartbeatFired(seq) })
	})
}

func (m *manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	m.heartbeatSeq++
}

func (m *manager) heartbeatFired(seq uint64) {
	if seq != m.heartbeatSeq || !m.open {
		return
	}
	m.heartbeat = nil
	m.transmit(mustEncode(protocol.Ping()))
	m.startHeartbeat()
}

// Send queues or transmits msg. On return the frame has been written or
// queued.
func (m *manager) Send(msg protocol.OutboundMessage) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return m.call(func() { m.transmit(frame) })
}

// SendChat sends a chat message.
func (m *manager) SendChat(text string) (string, error) {
	msg := protocol.Chat(text)
	if err := m.Send(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// RequestCurrentState asks for a fresh session snapshot.
func (m *manager) RequestCurrentState() (string, error) {
	msg := protocol.GetSession()
	if err := m.Send(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// transmit sends frame now if the transport is open and nothing is queued
// ahead of it, otherwise appends it to the queue.
func (m *manager) transmit(frame []byte) {
	if m.open && m.outbound.Len() == 0 {
		err := m.client.Send(frame)
		if err == nil {
			return
		}
		// The read side reports the close; keep the frame for the next open.
		m.logger.Warn("send failed, queueing", "session_id", m.sessionID, "error", err)
	}
	m.outbound.Send(frame)
	m.metrics.SetQueueDepth(m.outbound.Len())
}

// flush drains the queue oldest-first while the transport stays open.
func (m *manager) flush() {
	sent := 0
	for m.open {
		frame, ok := m.outbound.Peek()
		if !ok {
			break
		}
		if err := m.client.Send(frame); err != nil {
			m.logger.Warn("flush interrupted", "session_id", m.sessionID, "remaining", m.outbound.Len(), "error", err)
			break
		}
		m.outbound.TryReceive()
		sent++
	}
	if sent > 0 {
		m.logger.Debug("flushed queued messages", "session_id", m.sessionID, "count", sent)
	}
	m.metrics.SetQueueDepth(m.outbound.Len())
}

// SendAndWait sends msg and waits for the correlated reply.
func (m *manager) SendAndWait(ctx context.Context, msg protocol.OutboundMessage, timeout time.Duration) (protocol.InboundMessage, error) {
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}
	if msg.ID == "" {
		msg.ID = protocol.NewID()
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return protocol.InboundMessage{}, err
	}

	id := msg.ID
	req := &pendingRequest{done: make(chan reply, 1)}

	if err := m.submit(func() {
		if !m.pending.add(id, req) {
			req.done <- reply{err: ErrDuplicateRequest}
			return
		}
		req.timer = m.clock.AfterFunc(timeout, func() {
			m.submit(func() { m.expire(id, req) })
		})
		m.metrics.SetPending(m.pending.len())
		m.transmit(frame)
	}); err != nil {
		return protocol.InboundMessage{}, err
	}

	select {
	case r := <-req.done:
		return r.msg, r.err
	case <-ctx.Done():
		m.submit(func() {
			if m.pending.takeIf(id, req) {
				req.timer.Stop()
				m.metrics.SetPending(m.pending.len())
			}
		})
		return protocol.InboundMessage{}, ctx.Err()
	case <-m.ctx.Done():
		return protocol.InboundMessage{}, ErrManagerStopped
	}
}

func (m *manager) expire(id string, req *pendingRequest) {
	if !m.pending.takeIf(id, req) {
		return
	}
	m.metrics.SetPending(m.pending.len())
	m.metrics.RequestDone(metrics.OutcomeTimeout)
	m.logger.Debug("request timed out", "id", id)
	req.done <- reply{err: ErrTimeout}
}

// handleFrame routes one inbound frame.
func (m *manager) handleFrame(gen uint64, raw TimestampedMessage) {
	if gen != m.gen {
		return
	}

	msg, err := protocol.Decode(raw.Data)
	if err != nil {
		m.metrics.ParseError()
		m.logger.Warn("dropping malformed frame",
			"session_id", m.sessionID,
			"error", err,
			"size", len(raw.Data),
		)
		return
	}
	label := string(msg.Type)
	if !msg.Type.Known() {
		label = "unknown"
		m.logger.Debug("unknown event type, wildcard only", "session_id", m.sessionID, "type", msg.Type)
	}
	m.metrics.InboundFrame(label)

	switch msg.Type {
	case protocol.EventPong:
		return
	case protocol.EventPing:
		// Answered with our own ping, not a pong.
		m.transmit(mustEncode(protocol.Ping()))
		return
	}

	if msg.ID != "" {
		if req, ok := m.pending.take(msg.ID); ok {
			m.metrics.SetPending(m.pending.len())
			if msg.Type == protocol.EventError {
				m.metrics.RequestDone(metrics.OutcomeError)
				req.complete(reply{err: serverError(msg)})
			} else {
				m.metrics.RequestDone(metrics.OutcomeOK)
				req.complete(reply{msg: msg})
			}
		}
	}

	m.dispatch.enqueue(delivery{subs: m.subs.match(msg.Type), msg: msg})
}

func serverError(msg protocol.InboundMessage) *ServerError {
	var p protocol.ErrorPayload
	if err := msg.DecodePayload(&p); err != nil || p.Message == "" {
		p.Message = "Request failed"
	}
	return &ServerError{ID: msg.ID, Message: p.Message}
}

func (m *manager) notifyState(connected bool) {
	m.dispatch.enqueue(delivery{subs: m.subs.stateSubscribers(), connected: connected})
}

func (m *manager) register(sub *subscriber) {
	if sub.handler == nil && sub.state == nil {
		return
	}
	m.subs.add(sub)
}

// subscribe registers sub and returns its unsubscribe func.
func (m *manager) subscribe(s Subscription) func() {
	sub := newSubscriber(s)
	if err := m.do(func() { m.register(sub) }); err != nil {
		m.logger.Warn("subscription ignored", "error", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			m.do(func() { m.subs.remove(sub) })
		})
	}
}

// On subscribes h to events of type t.
func (m *manager) On(t protocol.InboundType, h Handler) func() {
	return m.subscribe(Handle(t, h))
}

// OnAny subscribes h to every event.
func (m *manager) OnAny(h Handler) func() {
	return m.subscribe(HandleAny(h))
}

// OnConnectionStateChange subscribes h to state changes.
func (m *manager) OnConnectionStateChange(h StateHandler) func() {
	return m.subscribe(HandleState(h))
}

// IsConnected reports whether the transport is open.
func (m *manager) IsConnected() bool {
	var open bool
	m.call(func() { open = m.open })
	return open
}

// CurrentSessionID returns the bound session.
func (m *manager) CurrentSessionID() (string, bool) {
	var (
		id    string
		bound bool
	)
	m.call(func() { id, bound = m.sessionID, m.bound })
	return id, bound
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	var s ManagerStats
	m.call(func() {
		s = ManagerStats{
			Connected:         m.open,
			SessionID:         m.sessionID,
			QueuedMessages:    m.outbound.Len(),
			Outbound:          m.outbound.Stats(),
			PendingRequests:   m.pending.len(),
			Subscribers:       m.subs.len(),
			ReconnectAttempts: m.attempts,
			ReconnectPending:  m.reconnectTimer != nil,
		}
	})
	return s
}

// sessionURL appends the escaped session id to the base channel URL.
func sessionURL(base, sessionID string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(sessionID)
}

func mustEncode(msg protocol.OutboundMessage) []byte {
	frame, err := protocol.Encode(msg)
	if err != nil {
		panic(fmt.Sprintf("encode %s: %v", msg.Type, err))
	}
	return frame
}
