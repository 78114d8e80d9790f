package broker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/domain"
	"github.com/spec-kit/status-engine/internal/observability"
	"github.com/spec-kit/status-engine/internal/statuscache"
	"github.com/spec-kit/status-engine/internal/subscription"
)

// Defaults applied to consumed status updates with missing fields.
const (
	defaultUpdatedBy    = "system"
	defaultUpdateReason = "Status updated"
)

// Consumer binds a durable queue to the status-update routing key and applies
// incoming records to the cache in delivery order. Undecodable messages are
// rejected without requeue; structurally valid but unusable ones are acked
// and dropped. Neither stops the consume loop.
type Consumer struct {
	supervisor *Supervisor
	cache      *statuscache.Cache
	registry   *subscription.Registry
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewConsumer constructs a consumer on top of the supervisor.
func NewConsumer(supervisor *Supervisor, cache *statuscache.Cache, registry *subscription.Registry, logger *zap.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		supervisor: supervisor,
		cache:      cache,
		registry:   registry,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start registers the consumer with the supervisor so it (re)binds its queue
// after every successful connect. ctx cancellation stops delivery handling.
func (c *Consumer) Start(ctx context.Context) {
	c.supervisor.OnConnected(func(ch *amqp.Channel) {
		go c.run(ctx, ch)
	})
}

// run declares the queue, binds it and consumes until the channel closes or
// ctx is cancelled. Each connect gets a fresh delivery stream; the previous
// one ends when its channel dies, so loops never overlap.
func (c *Consumer) run(ctx context.Context, ch *amqp.Channel) {
	queue, err := ch.QueueDeclare(QueueStatusUpdates, true, false, false, false, nil)
	if err != nil {
		c.logger.Error("queue declare failed", zap.String("queue", QueueStatusUpdates), zap.Error(err))
		return
	}
	if err := ch.QueueBind(queue.Name, RouteStatusUpdated, ExchangeName, false, nil); err != nil {
		c.logger.Error("queue bind failed", zap.String("queue", queue.Name), zap.Error(err))
		return
	}
	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		c.logger.Error("consume failed", zap.String("queue", queue.Name), zap.Error(err))
		return
	}

	c.logger.Info("consuming status updates",
		zap.String("queue", queue.Name), zap.String("routing_key", RouteStatusUpdated))

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.Handle(delivery)
		}
	}
}

type statusUpdateEnvelope struct {
	Type string           `json:"type"`
	Data statusUpdateData `json:"data"`
}

type statusUpdateData struct {
	TicketID  string        `json:"ticketId"`
	Status    domain.Status `json:"status"`
	Timestamp *time.Time    `json:"timestamp"`
	UpdatedBy string        `json:"updatedBy"`
	Reason    string        `json:"reason"`
}

// Handle processes one delivery: decode, validate, append, ack, notify.
func (c *Consumer) Handle(delivery amqp.Delivery) {
	var envelope statusUpdateEnvelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		// Poison message: reject without requeue so it is not retried.
		c.logger.Warn("rejecting undecodable message", zap.Error(err))
		c.metrics.RecordRejected()
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", zap.Error(nackErr))
		}
		return
	}

	if envelope.Type != RouteStatusUpdated || envelope.Data.TicketID == "" {
		c.logger.Warn("dropping malformed status update",
			zap.String("type", envelope.Type),
			zap.String("ticket_id", envelope.Data.TicketID))
		c.metrics.RecordDiscarded()
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", zap.Error(ackErr))
		}
		return
	}

	record := recordFromUpdate(envelope.Data)
	c.cache.Append(record.TicketID, record)

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("ack failed", zap.String("ticket_id", record.TicketID), zap.Error(err))
	}
	c.metrics.RecordConsumed()

	c.registry.Notify(domain.StatusUpdate{
		TicketID:      record.TicketID,
		CurrentStatus: record.Status,
		UpdatedAt:     record.Timestamp,
		Reason:        record.Reason,
		UpdatedBy:     record.UpdatedBy,
	})
}

func recordFromUpdate(data statusUpdateData) domain.StatusRecord {
	record := domain.StatusRecord{
		TicketID:  data.TicketID,
		Status:    data.Status,
		UpdatedBy: data.UpdatedBy,
		Reason:    data.Reason,
	}
	if data.Timestamp != nil {
		record.Timestamp = *data.Timestamp
	} else {
		record.Timestamp = time.Now().UTC()
	}
	if record.UpdatedBy == "" {
		record.UpdatedBy = defaultUpdatedBy
	}
	if record.Reason == "" {
		record.Reason = defaultUpdateReason
	}
	return record
}
