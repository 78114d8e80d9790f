package subscription

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/domain"
)

func update(ticketID string) domain.StatusUpdate {
	return domain.StatusUpdate{
		TicketID:      ticketID,
		CurrentStatus: domain.StatusInProgress,
		UpdatedAt:     time.Now().UTC(),
		Reason:        "started",
		UpdatedBy:     "alice",
	}
}

func TestNotifyInvokesSubscribers(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	var got []domain.StatusUpdate
	registry.Subscribe("t1", func(u domain.StatusUpdate) {
		got = append(got, u)
	})

	registry.Notify(update("t1"))
	if len(got) != 1 {
		t.Fatalf("callback invocations = %d, want 1", len(got))
	}
	if got[0].TicketID != "t1" || got[0].CurrentStatus != domain.StatusInProgress {
		t.Fatalf("unexpected update %+v", got[0])
	}
}

func TestNotifyScopedToTicket(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	invoked := 0
	registry.Subscribe("t1", func(domain.StatusUpdate) { invoked++ })

	registry.Notify(update("t2"))
	if invoked != 0 {
		t.Fatalf("callback for t1 invoked on t2 notification")
	}
}

func TestUnsubscribe(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	invoked := 0
	token := registry.Subscribe("t1", func(domain.StatusUpdate) { invoked++ })
	registry.Unsubscribe(token)

	registry.Notify(update("t1"))
	if invoked != 0 {
		t.Fatalf("callback invoked after unsubscribe")
	}
	if registry.Count("t1") != 0 {
		t.Fatalf("Count(t1) = %d after unsubscribe", registry.Count("t1"))
	}

	// Unknown tokens are ignored.
	registry.Unsubscribe("no-such-token")
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	registry.Subscribe("t1", func(domain.StatusUpdate) {
		panic("subscriber failure")
	})
	survived := false
	registry.Subscribe("t1", func(domain.StatusUpdate) {
		survived = true
	})

	registry.Notify(update("t1"))
	if !survived {
		t.Fatal("panicking subscriber prevented other subscribers from running")
	}
}

func TestConcurrentSubscribeAndNotify(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Subscribe(fmt.Sprintf("t%d", i%4), func(domain.StatusUpdate) {})
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Notify(update(fmt.Sprintf("t%d", i%4)))
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		total += registry.Count(fmt.Sprintf("t%d", i))
	}
	if total != 16 {
		t.Fatalf("total subscriptions = %d, want 16", total)
	}
}
