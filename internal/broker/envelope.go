package broker

import (
	"time"

	"github.com/spec-kit/status-engine/internal/domain"
)

// Exchange and queue topology shared by publisher and consumer.
const (
	ExchangeName       = "ticket_events"
	QueueStatusUpdates = "ticket_service_status_updates"
)

// Routing keys for ticket lifecycle facts.
const (
	RouteTicketCreated  = "ticket.created"
	RouteTicketUpdated  = "ticket.updated"
	RouteStatusChanged  = "ticket.status.changed"
	RouteTicketAssigned = "ticket.assigned"
	RouteTicketResolved = "ticket.resolved"
	RouteTicketDeleted  = "ticket.deleted"
	RouteStatusUpdated  = "ticket.status.updated"
)

// Default reasons applied when the caller supplies none.
const (
	DefaultUpdateReason  = "General update"
	DefaultResolveReason = "Issue resolved"
)

// Envelope is the wire shape of every published message. Type always equals
// the routing key; Data is one of the payload structs below.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TicketCreatedPayload announces a new ticket.
type TicketCreatedPayload struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	AssignedTo  *string               `json:"assignedTo"`
	CreatedBy   string                `json:"createdBy"`
	CreatedAt   time.Time             `json:"createdAt"`
	UserID      string                `json:"userId"`
	Timestamp   time.Time             `json:"timestamp"`
}

// TicketUpdatedPayload announces a general ticket update.
type TicketUpdatedPayload struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	AssignedTo     *string               `json:"assignedTo"`
	UpdatedBy      string                `json:"updatedBy"`
	PreviousStatus domain.Status         `json:"previousStatus"`
	CurrentStatus  domain.Status         `json:"currentStatus"`
	Reason         string                `json:"reason"`
	Timestamp      time.Time             `json:"timestamp"`
}

// StatusChangedPayload announces an explicit status transition.
type StatusChangedPayload struct {
	ID             string        `json:"id"`
	PreviousStatus domain.Status `json:"previousStatus"`
	CurrentStatus  domain.Status `json:"currentStatus"`
	UpdatedBy      string        `json:"updatedBy"`
	Reason         string        `json:"reason"`
	Timestamp      time.Time     `json:"timestamp"`
}

// TicketAssignedPayload announces an assignment change.
type TicketAssignedPayload struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	AssignedTo       *string   `json:"assignedTo"`
	AssignedBy       string    `json:"assignedBy"`
	PreviousAssignee *string   `json:"previousAssignee"`
	Timestamp        time.Time `json:"timestamp"`
}

// TicketResolvedPayload announces a resolution.
type TicketResolvedPayload struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ResolvedBy string    `json:"resolvedBy"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// TicketDeletedPayload announces a deletion.
type TicketDeletedPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTicketCreated shapes the ticket.created envelope.
func NewTicketCreated(t domain.Ticket) Envelope {
	return Envelope{Type: RouteTicketCreated, Data: TicketCreatedPayload{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UserID:      t.UserID,
		Timestamp:   time.Now().UTC(),
	}}
}

// NewTicketUpdated shapes the ticket.updated envelope. An empty reason is
// replaced with DefaultUpdateReason.
func NewTicketUpdated(t domain.Ticket, previousStatus domain.Status, reason string) Envelope {
	if reason == "" {
		reason = DefaultUpdateReason
	}
	return Envelope{Type: RouteTicketUpdated, Data: TicketUpdatedPayload{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Priority:       t.Priority,
		AssignedTo:     t.AssignedTo,
		UpdatedBy:      t.UpdatedBy,
		PreviousStatus: previousStatus,
		CurrentStatus:  t.Status,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
	}}
}

// NewStatusChanged shapes the ticket.status.changed envelope.
func NewStatusChanged(ticketID string, previous, next domain.Status, updatedBy, reason string) Envelope {
	return Envelope{Type: RouteStatusChanged, Data: StatusChangedPayload{
		ID:             ticketID,
		PreviousStatus: previous,
		CurrentStatus:  next,
		UpdatedBy:      updatedBy,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
	}}
}

// NewTicketAssigned shapes the ticket.assigned envelope. previousAssignee may
// be nil for a first assignment.
func NewTicketAssigned(t domain.Ticket, assignedBy string, previousAssignee *string) Envelope {
	return Envelope{Type: RouteTicketAssigned, Data: TicketAssignedPayload{
		ID:               t.ID,
		Title:            t.Title,
		AssignedTo:       t.AssignedTo,
		AssignedBy:       assignedBy,
		PreviousAssignee: previousAssignee,
		Timestamp:        time.Now().UTC(),
	}}
}

// NewTicketResolved shapes the ticket.resolved envelope. An empty reason is
// replaced with DefaultResolveReason.
func NewTicketResolved(t domain.Ticket, resolvedBy, reason string) Envelope {
	if reason == "" {
		reason = DefaultResolveReason
	}
	return Envelope{Type: RouteTicketResolved, Data: TicketResolvedPayload{
		ID:         t.ID,
		Title:      t.Title,
		ResolvedBy: resolvedBy,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}}
}

// NewTicketDeleted shapes the ticket.deleted envelope.
func NewTicketDeleted(ticketID string) Envelope {
	return Envelope{Type: RouteTicketDeleted, Data: TicketDeletedPayload{
		ID:        ticketID,
		Timestamp: time.Now().UTC(),
	}}
}
