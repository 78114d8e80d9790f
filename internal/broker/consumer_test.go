package broker

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/domain"
	"github.com/spec-kit/status-engine/internal/observability"
	"github.com/spec-kit/status-engine/internal/statuscache"
	"github.com/spec-kit/status-engine/internal/subscription"
)

type stubAcknowledger struct {
	acks    int
	nacks   int
	requeue []bool
}

func (s *stubAcknowledger) Ack(tag uint64, multiple bool) error {
	s.acks++
	return nil
}

func (s *stubAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	s.nacks++
	s.requeue = append(s.requeue, requeue)
	return nil
}

func (s *stubAcknowledger) Reject(tag uint64, requeue bool) error {
	s.nacks++
	s.requeue = append(s.requeue, requeue)
	return nil
}

func newTestConsumer() (*Consumer, *statuscache.Cache, *subscription.Registry) {
	logger := zap.NewNop()
	cache := statuscache.New()
	registry := subscription.NewRegistry(logger)
	consumer := NewConsumer(nil, cache, registry, logger, observability.NewMetrics())
	return consumer, cache, registry
}

func delivery(ack *stubAcknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

func TestHandleValidUpdate(t *testing.T) {
	consumer, cache, registry := newTestConsumer()

	var notified []domain.StatusUpdate
	registry.Subscribe("t1", func(u domain.StatusUpdate) {
		notified = append(notified, u)
	})

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `{
		"type": "ticket.status.updated",
		"data": {
			"ticketId": "t1",
			"status": "in-progress",
			"timestamp": "2026-03-01T09:00:00Z",
			"updatedBy": "alice",
			"reason": "started"
		}
	}`))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks = %d, nacks = %d, want 1, 0", ack.acks, ack.nacks)
	}
	history, ok := cache.History("t1")
	if !ok || len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	record := history[0]
	if record.Status != domain.StatusInProgress || record.UpdatedBy != "alice" || record.Reason != "started" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.Timestamp.Equal(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("Timestamp = %v", record.Timestamp)
	}
	if len(notified) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notified))
	}
	if notified[0].CurrentStatus != domain.StatusInProgress || notified[0].UpdatedBy != "alice" {
		t.Fatalf("unexpected notification %+v", notified[0])
	}
}

func TestHandleAppliesDefaults(t *testing.T) {
	consumer, cache, _ := newTestConsumer()

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `{
		"type": "ticket.status.updated",
		"data": {"ticketId": "t1", "status": "resolved"}
	}`))

	history, _ := cache.History("t1")
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	record := history[0]
	if record.UpdatedBy != "system" {
		t.Fatalf("UpdatedBy = %q, want system", record.UpdatedBy)
	}
	if record.Reason != "Status updated" {
		t.Fatalf("Reason = %q, want Status updated", record.Reason)
	}
	if record.Timestamp.IsZero() {
		t.Fatal("missing timestamp must default to now")
	}
}

func TestHandlePoisonMessage(t *testing.T) {
	consumer, cache, _ := newTestConsumer()

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `not json at all`))

	if ack.nacks != 1 {
		t.Fatalf("nacks = %d, want 1", ack.nacks)
	}
	if ack.requeue[0] {
		t.Fatal("poison message must not be requeued")
	}
	if ack.acks != 0 {
		t.Fatalf("acks = %d, want 0", ack.acks)
	}
	if cache.Len() != 0 {
		t.Fatal("poison message must not mutate the cache")
	}

	// The consumer keeps working after a poison message.
	next := &stubAcknowledger{}
	consumer.Handle(delivery(next, `{
		"type": "ticket.status.updated",
		"data": {"ticketId": "t2", "status": "closed"}
	}`))
	if next.acks != 1 {
		t.Fatalf("acks after poison = %d, want 1", next.acks)
	}
	if got := cache.CurrentStatus("t2"); got != domain.StatusClosed {
		t.Fatalf("CurrentStatus(t2) = %s, want closed", got)
	}
}

func TestHandleWrongEventType(t *testing.T) {
	consumer, cache, _ := newTestConsumer()

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `{
		"type": "ticket.created",
		"data": {"ticketId": "t1", "status": "open"}
	}`))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks = %d, nacks = %d, want 1, 0", ack.acks, ack.nacks)
	}
	if cache.Len() != 0 {
		t.Fatal("malformed envelope must not mutate the cache")
	}
}

func TestHandleMissingTicketID(t *testing.T) {
	consumer, cache, _ := newTestConsumer()

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `{
		"type": "ticket.status.updated",
		"data": {"status": "open"}
	}`))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks = %d, nacks = %d, want 1, 0", ack.acks, ack.nacks)
	}
	if cache.Len() != 0 {
		t.Fatal("update without ticketId must not mutate the cache")
	}
}

func TestHandlePanickingSubscriberDoesNotStopProcessing(t *testing.T) {
	consumer, cache, registry := newTestConsumer()

	registry.Subscribe("t1", func(domain.StatusUpdate) {
		panic("bad subscriber")
	})

	ack := &stubAcknowledger{}
	consumer.Handle(delivery(ack, `{
		"type": "ticket.status.updated",
		"data": {"ticketId": "t1", "status": "in-progress"}
	}`))

	if ack.acks != 1 {
		t.Fatalf("acks = %d, want 1", ack.acks)
	}
	if got := cache.CurrentStatus("t1"); got != domain.StatusInProgress {
		t.Fatalf("CurrentStatus(t1) = %s", got)
	}
}

func TestHandlePreservesDeliveryOrder(t *testing.T) {
	consumer, cache, _ := newTestConsumer()

	for i, status := range []string{"in-progress", "resolved", "closed"} {
		ack := &stubAcknowledger{}
		consumer.Handle(delivery(ack, `{
			"type": "ticket.status.updated",
			"data": {"ticketId": "t1", "status": "`+status+`", "timestamp": "2026-03-01T09:0`+string(rune('0'+i))+`:00Z"}
		}`))
	}

	history, _ := cache.History("t1")
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if history[2].Status != domain.StatusClosed {
		t.Fatalf("last status = %s, want closed", history[2].Status)
	}
	if got := cache.CurrentStatus("t1"); got != domain.StatusClosed {
		t.Fatalf("CurrentStatus(t1) = %s, want closed", got)
	}
}
