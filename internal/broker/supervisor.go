package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/config"
	"github.com/spec-kit/status-engine/internal/observability"
	"github.com/spec-kit/status-engine/pkg/util"
)

// State describes the supervisor's connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultReconnectDelay = 5 * time.Second
	dialTimeout           = 5 * time.Second
)

var errSupervisorClosed = errors.New("broker supervisor closed")

// Supervisor owns the broker connection and channel lifecycle. A lost
// connection or channel moves it back to disconnected and schedules a single
// reconnect attempt after a fixed delay. A down broker degrades publishing
// and consuming but never crashes or blocks the hosting process.
type Supervisor struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	dial           func() (*amqp.Connection, error)
	reconnectDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	state            State
	conn             *amqp.Connection
	ch               *amqp.Channel
	reconnectPending bool
	closed           bool
	onConnected      []func(*amqp.Channel)
}

// NewSupervisor builds a supervisor; no connection is attempted until Start.
func NewSupervisor(cfg config.BrokerConfig, logger *zap.Logger, metrics *observability.Metrics) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		logger:  logger,
		metrics: metrics,
		dial: func() (*amqp.Connection, error) {
			return amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		},
		reconnectDelay: defaultReconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start attempts the initial connection. Failure is not fatal: a reconnect
// is scheduled and the error is only logged.
func (s *Supervisor) Start() {
	if err := s.Connect(); err != nil && !errors.Is(err, errSupervisorClosed) {
		s.logger.Warn("initial broker connect failed", zap.Error(err))
	}
}

// Connect dials the broker, opens a channel and declares the durable topic
// exchange. Redeclaring the exchange on every connect is idempotent. Any
// previous connection still held (for instance after a channel-level close)
// is shut down before redialing.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSupervisorClosed
	}
	if s.state == StateConnected && s.ch != nil && !s.ch.IsClosed() {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateConnecting {
		s.mu.Unlock()
		return errors.New("broker connect already in progress")
	}
	staleConn, staleCh := s.conn, s.ch
	s.conn, s.ch = nil, nil
	s.state = StateConnecting
	s.mu.Unlock()

	// The stale connection's watcher sees a different conn than s.conn and
	// stays quiet when this close fires its NotifyClose.
	if staleCh != nil {
		_ = staleCh.Close()
	}
	if staleConn != nil && !staleConn.IsClosed() {
		_ = staleConn.Close()
	}

	s.metrics.RecordReconnect()
	conn, err := s.dial()
	if err != nil {
		s.connectFailed()
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		s.connectFailed()
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		s.connectFailed()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return errSupervisorClosed
	}
	s.conn = conn
	s.ch = ch
	s.state = StateConnected
	hooks := append([]func(*amqp.Channel){}, s.onConnected...)
	s.mu.Unlock()

	go s.watch(conn, ch)

	s.logger.Info("connected to broker", zap.String("exchange", ExchangeName))
	for _, hook := range hooks {
		hook(ch)
	}
	return nil
}

// watch waits for a connection- or channel-level close and routes the
// supervisor back to disconnected. Channel-level protocol errors close the
// channel while the connection stays open; both must re-arm recovery or a
// consume-only process would stay dead until the TCP connection dropped.
func (s *Supervisor) watch(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	var amqpErr *amqp.Error
	select {
	case <-s.ctx.Done():
		return
	case amqpErr = <-connClosed:
	case amqpErr = <-chClosed:
	}
	if amqpErr != nil {
		s.logger.Warn("broker connection lost", zap.Error(amqpErr))
	}
	s.dropConnection(conn)
}

// dropConnection transitions to disconnected and schedules a reconnect,
// unless the closed connection has already been replaced by a newer one.
func (s *Supervisor) dropConnection(conn *amqp.Connection) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.conn = nil
	s.ch = nil
	s.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
	s.scheduleReconnect()
}

// connectFailed records a failed connect attempt and arms the retry.
func (s *Supervisor) connectFailed() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.scheduleReconnect()
}

// scheduleReconnect arms a single delayed reconnect. At most one reconnect
// task may be pending at a time; further failures re-arm it from Connect.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.reconnectPending {
		s.mu.Unlock()
		return
	}
	s.reconnectPending = true
	s.mu.Unlock()

	go func() {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.reconnectPending = false
			s.mu.Unlock()
			return
		case <-time.After(s.reconnectDelay):
		}

		s.mu.Lock()
		s.reconnectPending = false
		s.mu.Unlock()

		if err := s.Connect(); err != nil && !errors.Is(err, errSupervisorClosed) {
			s.logger.Warn("broker reconnect failed", zap.Error(err))
		}
	}()
}

// Channel returns the live channel, attempting one synchronous reconnect
// when the supervisor is disconnected. The dial timeout bounds how long a
// caller can be held up.
func (s *Supervisor) Channel() (*amqp.Channel, error) {
	s.mu.Lock()
	if s.state == StateConnected && s.ch != nil && !s.ch.IsClosed() {
		ch := s.ch
		s.mu.Unlock()
		return ch, nil
	}
	s.mu.Unlock()

	if err := s.Connect(); err != nil {
		return nil, util.NewBrokerUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil, util.NewBrokerUnavailable(errors.New("no channel available"))
	}
	return s.ch, nil
}

// OnConnected registers a hook invoked with the channel after every
// successful connect. If the supervisor is already connected, the hook runs
// immediately.
func (s *Supervisor) OnConnected(hook func(*amqp.Channel)) {
	s.mu.Lock()
	s.onConnected = append(s.onConnected, hook)
	var ch *amqp.Channel
	if s.state == StateConnected && s.ch != nil {
		ch = s.ch
	}
	s.mu.Unlock()

	if ch != nil {
		hook(ch)
	}
}

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether a live channel is available.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.ch != nil && !s.ch.IsClosed()
}

// Close shuts the supervisor down: no further reconnects are scheduled and
// the active channel and connection are closed.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ch, conn := s.ch, s.conn
	s.ch, s.conn = nil, nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.cancel()
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.logger.Info("broker supervisor closed")
}
