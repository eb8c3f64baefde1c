package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024

	DefaultMaxReconnectAttempts = 3
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultSendBufferSize       = 128
)

var DefaultReconnectDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Handler receives session events. Callbacks run on the socket's reader
// goroutine or on the caller of Connect/Disconnect, never under a lock.
type Handler interface {
	OnConnected()
	OnDisconnected()
	OnAudio(data []byte, mimeType string)
	OnTranscript(role Role, text string)
	OnMetadata(raw json.RawMessage)
	OnError(err error)
}

type Config struct {
	Endpoint  string
	SessionID string
	Token     string

	ReconnectDelays      []time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
	SendBufferSize       int

	Dialer  *websocket.Dialer
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

type outbound struct {
	messageType int
	data        []byte
}

type connection struct {
	id        string
	ws        *websocket.Conn
	send      chan outbound
	closeOnce sync.Once
}

func (c *connection) enqueue(msg outbound) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *connection) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Session owns one logical connection to a voice agent, including its
// automatic reconnection.
type Session struct {
	url     string
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	status     Status
	conn       *connection
	attempts   int
	reconnect  bool
	timer      *clock.Timer
	cancelDial context.CancelFunc
	epoch      uint64
	err        error
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Session, error) {
	target, err := BuildURL(cfg.Endpoint, cfg.SessionID, cfg.Token)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("transport: handler is required")
	}

	if len(cfg.ReconnectDelays) == 0 {
		cfg.ReconnectDelays = DefaultReconnectDelays
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultSendBufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		url:     target,
		cfg:     cfg,
		handler: handler,
		dialer:  dialer,
		clock:   cfg.Clock,
		logger:  logger.With("component", "transport", "session_id", cfg.SessionID),
		metrics: cfg.Metrics,
		status:  StatusDisconnected,
	}, nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Connect dials the endpoint. A failed dial is returned and also handed
// to the reconnect policy. Connect on a connecting or connected session
// is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	s.stopTimerLocked()
	s.reconnect = true
	s.attempts = 0
	s.epoch++
	epoch := s.epoch
	s.status = StatusConnecting
	s.mu.Unlock()

	return s.dial(ctx, epoch)
}

func (s *Session) dial(ctx context.Context, epoch uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return fmt.Errorf("connect aborted: %w", shared.ErrNotConnected)
	}
	s.cancelDial = cancel
	s.mu.Unlock()

	s.logger.Debug("dialing voice endpoint")
	ws, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		connErr := &shared.ConnectionError{Op: "dial", Err: err}
		s.fail(epoch, connErr)
		return connErr
	}

	if !s.open(epoch, ws) {
		_ = ws.Close()
		return fmt.Errorf("connect aborted: %w", shared.ErrNotConnected)
	}
	return nil
}

func (s *Session) open(epoch uint64, ws *websocket.Conn) bool {
	c := &connection{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan outbound, s.cfg.SendBufferSize),
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.cancelDial = nil
	s.conn = c
	s.attempts = 0
	s.err = nil
	s.status = StatusConnected
	c.enqueue(outbound{messageType: websocket.TextMessage, data: encodeControl(MessageTypeSessionStart)})
	s.mu.Unlock()

	s.metrics.SetConnected(true)
	s.logger.Info("connected", "conn_id", c.id)

	go s.writePump(c)
	s.handler.OnConnected()
	go s.readPump(c)
	return true
}

func (s *Session) fail(epoch uint64, err error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.cancelDial = nil
	s.status = StatusDisconnected
	s.err = err
	s.mu.Unlock()

	s.logger.Warn("connection attempt failed", "error", err)
	s.handler.OnError(err)
	s.scheduleReconnect(epoch)
}

func (s *Session) scheduleReconnect(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || !s.reconnect {
		s.mu.Unlock()
		return
	}

	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.reconnect = false
		exhausted := fmt.Errorf("%w after %d attempts", shared.ErrReconnectExhausted, s.attempts)
		if s.err != nil {
			exhausted = fmt.Errorf("%w after %d attempts: %w", shared.ErrReconnectExhausted, s.attempts, s.err)
		}
		s.err = exhausted
		s.mu.Unlock()

		s.logger.Error("giving up on reconnection", "error", exhausted)
		s.handler.OnError(exhausted)
		return
	}

	idx := min(s.attempts, len(s.cfg.ReconnectDelays)-1)
	delay := s.cfg.ReconnectDelays[idx]
	s.attempts++
	attempt := s.attempts
	s.timer = s.clock.AfterFunc(delay, func() {
		s.reconnectNow(epoch)
	})
	s.mu.Unlock()

	s.metrics.ReconnectScheduled()
	s.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (s *Session) reconnectNow(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || !s.reconnect {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.status = StatusConnecting
	s.mu.Unlock()

	_ = s.dial(context.Background(), epoch)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) hasPendingReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// SendAudio queues one binary chunk. Chunks are dropped while the socket
// is not open or when the send buffer is full.
func (s *Session) SendAudio(chunk []byte) {
	s.mu.Lock()
	c := s.conn
	if c == nil {
		s.mu.Unlock()
		s.metrics.AudioDropped("disconnected")
		return
	}
	ok := c.enqueue(outbound{messageType: websocket.BinaryMessage, data: chunk})
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("send buffer full, dropping audio chunk", "conn_id", c.id)
		s.metrics.AudioDropped("backpressure")
		return
	}
	s.metrics.AudioSent()
}

// Disconnect closes the socket and disables reconnection. It is safe to
// call at any time, any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.reconnect = false
	s.stopTimerLocked()
	s.epoch++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	c := s.conn
	s.conn = nil
	if c != nil {
		c.closeSend()
	}
	prev := s.status
	s.status = StatusDisconnected
	s.mu.Unlock()

	if c != nil {
		s.metrics.SetConnected(false)
		s.logger.Info("disconnected", "conn_id", c.id)
	} else if prev == StatusConnecting {
		s.logger.Info("connection attempt cancelled")
	}
	if c != nil || prev != StatusDisconnected {
		s.handler.OnDisconnected()
	}
}

func (s *Session) endFromRemote(c *connection) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.reconnect = false
	s.stopTimerLocked()
	s.epoch++
	s.conn = nil
	c.closeSend()
	s.status = StatusDisconnected
	s.mu.Unlock()

	s.metrics.SetConnected(false)
	s.logger.Info("session ended by agent", "conn_id", c.id)
	s.handler.OnDisconnected()
}

func (s *Session) handleClose(c *connection, cause error) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	c.closeSend()
	s.status = StatusDisconnected
	connErr := &shared.ConnectionError{Op: "read", Err: cause}
	s.err = connErr
	epoch := s.epoch
	s.mu.Unlock()

	s.metrics.SetConnected(false)
	s.logger.Warn("connection lost", "conn_id", c.id, "error", cause)
	s.handler.OnDisconnected()
	s.handler.OnError(connErr)
	s.scheduleReconnect(epoch)
}

func (s *Session) readPump(c *connection) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			s.handleClose(c, err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			s.metrics.MessageReceived("binary")
			s.dispatch(c, DecodeBinary(data))
		case websocket.TextMessage:
			msg, err := DecodeText(data)
			if err != nil {
				s.metrics.ProtocolError()
				s.logger.Debug("ignoring undecodable message", "conn_id", c.id, "error", err)
				continue
			}
			s.metrics.MessageReceived(string(msg.Type()))
			if s.dispatch(c, msg) {
				return
			}
		}
	}
}

// dispatch routes one decoded message and reports whether it ended the session.
func (s *Session) dispatch(c *connection, msg Message) bool {
	switch m := msg.(type) {
	case AudioMessage:
		s.handler.OnAudio(m.Data, m.MimeType)
	case TranscriptMessage:
		s.handler.OnTranscript(m.Role, m.Text)
	case MetadataMessage:
		s.handler.OnMetadata(m.Raw)
	case ErrorMessage:
		remote := shared.NewRemoteError(m.Message)
		s.mu.Lock()
		s.err = remote
		s.mu.Unlock()
		s.logger.Warn("voice agent reported an error", "conn_id", c.id, "error", remote)
		s.handler.OnError(remote)
	case SessionEndMessage:
		s.endFromRemote(c)
		return true
	case UnknownMessage:
		s.logger.Debug("ignoring unknown message type", "conn_id", c.id, "type", m.Kind)
	}
	return false
}

func (s *Session) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(msg.messageType, msg.data); err != nil {
				s.logger.Warn("websocket write error", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
