package domain

import "time"

// Status enumerates workflow states for tickets.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	// StatusUnknown is reported for tickets the engine has no record of
	// when the remote authority cannot be reached.
	StatusUnknown Status = "unknown"
)

// StatusRecord is a single immutable entry in a ticket's status history.
type StatusRecord struct {
	TicketID  string    `json:"ticketId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updatedBy"`
	Reason    string    `json:"reason"`
}

// StatusUpdate is the notification payload delivered to subscribers when a
// consumed event lands in the cache.
type StatusUpdate struct {
	TicketID      string    `json:"ticketId"`
	CurrentStatus Status    `json:"currentStatus"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Reason        string    `json:"reason"`
	UpdatedBy     string    `json:"updatedBy"`
}

// transitionGraph is the fixed set of legal status transitions. closed is
// terminal: it has no outgoing edges, unlike resolved which may be reopened.
var transitionGraph = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusResolved, StatusClosed},
	StatusResolved:   {StatusClosed, StatusInProgress},
	StatusClosed:     {},
}

// CanTransition reports whether a ticket may move from current to next.
// Unknown current statuses have no legal transitions.
func CanTransition(current, next Status) bool {
	for _, candidate := range transitionGraph[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// KnownStatus reports whether s is part of the workflow graph.
func KnownStatus(s Status) bool {
	_, ok := transitionGraph[s]
	return ok
}
