package domain

import "time"

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket carries the fields of a ticket that appear on lifecycle events.
// The ticket of record lives in the CRUD service; the engine only sees this
// projection when shaping bus payloads.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Priority    TicketPriority
	AssignedTo  *string
	CreatedBy   string
	UpdatedBy   string
	UserID      string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
