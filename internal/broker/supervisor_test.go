package broker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/config"
	"github.com/spec-kit/status-engine/internal/observability"
	"github.com/spec-kit/status-engine/pkg/util"
)

func newTestSupervisor(t *testing.T, dial func() (*amqp.Connection, error)) *Supervisor {
	t.Helper()
	s := NewSupervisor(config.BrokerConfig{URL: "amqp://localhost:5672"}, zap.NewNop(), observability.NewMetrics())
	s.dial = dial
	s.reconnectDelay = 10 * time.Millisecond
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *Supervisor) reconnectArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectPending
}

func TestSupervisorStartsDisconnected(t *testing.T) {
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		return nil, errors.New("dial refused")
	})

	if s.State() != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", s.State())
	}
	if s.IsConnected() {
		t.Fatal("IsConnected() = true before any connect")
	}
}

func TestConnectFailureReturnsToDisconnected(t *testing.T) {
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		return nil, errors.New("dial refused")
	})

	if err := s.Connect(); err == nil {
		t.Fatal("Connect() succeeded with a refusing dialer")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("State() = %s after failed connect, want disconnected", s.State())
	}
	if !s.reconnectArmed() {
		t.Fatal("failed connect did not arm a reconnect")
	}
}

func TestConnectingStateRejectsConcurrentConnect(t *testing.T) {
	release := make(chan struct{})
	var attempts atomic.Int32
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		if attempts.Add(1) == 1 {
			<-release
		}
		return nil, errors.New("dial refused")
	})

	done := make(chan error, 1)
	go func() { done <- s.Connect() }()

	waitFor(t, "connecting state", func() bool { return s.State() == StateConnecting })

	if err := s.Connect(); err == nil {
		t.Fatal("second Connect() did not report an attempt in progress")
	}

	close(release)
	if err := <-done; err == nil {
		t.Fatal("first Connect() succeeded with a refusing dialer")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("State() = %s after failed connect, want disconnected", s.State())
	}
}

func TestSingleReconnectPending(t *testing.T) {
	var attempts atomic.Int32
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		attempts.Add(1)
		return nil, errors.New("dial refused")
	})
	s.reconnectDelay = time.Hour

	if err := s.Connect(); err == nil {
		t.Fatal("Connect() succeeded with a refusing dialer")
	}
	for i := 0; i < 5; i++ {
		s.scheduleReconnect()
	}

	time.Sleep(20 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Fatalf("dial attempts = %d, want 1 (retry still pending)", got)
	}
	if !s.reconnectArmed() {
		t.Fatal("reconnect no longer pending")
	}
}

func TestReconnectRetriesAfterDelay(t *testing.T) {
	var attempts atomic.Int32
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		attempts.Add(1)
		return nil, errors.New("dial refused")
	})

	s.Start()
	waitFor(t, "delayed retry", func() bool { return attempts.Load() >= 2 })

	if s.State() != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected while broker is down", s.State())
	}
}

func TestStaleConnectionCloseIsIgnored(t *testing.T) {
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		return nil, errors.New("dial refused")
	})

	current := new(amqp.Connection)
	s.mu.Lock()
	s.conn = current
	s.state = StateConnected
	s.mu.Unlock()

	// A close notification from an already-replaced connection must not
	// tear down its successor.
	s.dropConnection(new(amqp.Connection))

	if s.State() != StateConnected {
		t.Fatalf("State() = %s, want connected after stale close", s.State())
	}
	s.mu.Lock()
	kept := s.conn == current
	s.mu.Unlock()
	if !kept {
		t.Fatal("stale close replaced the live connection")
	}
	if s.reconnectArmed() {
		t.Fatal("stale close armed a reconnect")
	}

	// Detach the fake before Close tears the supervisor down.
	s.mu.Lock()
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()
}

func TestChannelReportsBrokerUnavailable(t *testing.T) {
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		return nil, errors.New("dial refused")
	})

	_, err := s.Channel()
	if err == nil {
		t.Fatal("Channel() succeeded with a refusing dialer")
	}
	var domainErr *util.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "BROKER_UNAVAILABLE" {
		t.Fatalf("err = %v, want BROKER_UNAVAILABLE", err)
	}
}

func TestCloseStopsReconnects(t *testing.T) {
	var attempts atomic.Int32
	s := newTestSupervisor(t, func() (*amqp.Connection, error) {
		attempts.Add(1)
		return nil, errors.New("dial refused")
	})

	s.Start()
	s.Close()
	waitFor(t, "pending reconnect to drain", func() bool { return !s.reconnectArmed() })

	before := attempts.Load()
	time.Sleep(30 * time.Millisecond)
	if got := attempts.Load(); got != before {
		t.Fatalf("dial attempts grew from %d to %d after Close", before, got)
	}
	if err := s.Connect(); !errors.Is(err, errSupervisorClosed) {
		t.Fatalf("Connect() after Close = %v, want supervisor closed", err)
	}
}
