package broker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/domain"
	"github.com/spec-kit/status-engine/internal/observability"
)

// Publisher turns domain facts into bus messages. Publishing is
// fire-and-forget: a failure is logged and reported as false, but it never
// blocks or fails the caller's primary workflow. Messages are marked
// persistent, yet from the producing service's point of view delivery is
// best effort at most.
type Publisher struct {
	supervisor *Supervisor
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewPublisher constructs a publisher on top of the supervisor.
func NewPublisher(supervisor *Supervisor, logger *zap.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{supervisor: supervisor, logger: logger, metrics: metrics}
}

// Publish sends one envelope under the given routing key. When no channel is
// available it triggers reconnection via the supervisor; if that also fails
// it returns false without raising.
func (p *Publisher) Publish(ctx context.Context, routingKey string, envelope Envelope) bool {
	ch, err := p.supervisor.Channel()
	if err != nil {
		p.logger.Warn("publish skipped, broker unavailable",
			zap.String("routing_key", routingKey), zap.Error(err))
		p.metrics.RecordPublish(routingKey, false)
		return false
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("publish skipped, envelope not serializable",
			zap.String("routing_key", routingKey), zap.Error(err))
		p.metrics.RecordPublish(routingKey, false)
		return false
	}

	err = ch.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("publish failed",
			zap.String("routing_key", routingKey), zap.Error(err))
		p.metrics.RecordPublish(routingKey, false)
		return false
	}

	p.logger.Debug("published event", zap.String("routing_key", routingKey))
	p.metrics.RecordPublish(routingKey, true)
	return true
}

// PublishTicketCreated announces a new ticket.
func (p *Publisher) PublishTicketCreated(ctx context.Context, ticket domain.Ticket) bool {
	return p.Publish(ctx, RouteTicketCreated, NewTicketCreated(ticket))
}

// PublishTicketUpdated announces a general ticket update.
func (p *Publisher) PublishTicketUpdated(ctx context.Context, ticket domain.Ticket, previousStatus domain.Status, reason string) bool {
	return p.Publish(ctx, RouteTicketUpdated, NewTicketUpdated(ticket, previousStatus, reason))
}

// PublishStatusChanged announces an explicit status transition.
func (p *Publisher) PublishStatusChanged(ctx context.Context, ticketID string, previous, next domain.Status, updatedBy, reason string) bool {
	return p.Publish(ctx, RouteStatusChanged, NewStatusChanged(ticketID, previous, next, updatedBy, reason))
}

// PublishTicketAssigned announces an assignment change.
func (p *Publisher) PublishTicketAssigned(ctx context.Context, ticket domain.Ticket, assignedBy string, previousAssignee *string) bool {
	return p.Publish(ctx, RouteTicketAssigned, NewTicketAssigned(ticket, assignedBy, previousAssignee))
}

// PublishTicketResolved announces a resolution.
func (p *Publisher) PublishTicketResolved(ctx context.Context, ticket domain.Ticket, resolvedBy, reason string) bool {
	return p.Publish(ctx, RouteTicketResolved, NewTicketResolved(ticket, resolvedBy, reason))
}

// PublishTicketDeleted announces a deletion.
func (p *Publisher) PublishTicketDeleted(ctx context.Context, ticketID string) bool {
	return p.Publish(ctx, RouteTicketDeleted, NewTicketDeleted(ticketID))
}
