package dto

import (
	"github.com/spec-kit/status-engine/internal/domain"
)

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status    domain.Status `json:"status"`
	UpdatedBy string        `json:"updatedBy"`
	Reason    string        `json:"reason"`
}

// BatchStatusRequest payload.
type BatchStatusRequest struct {
	TicketIDs []string `json:"ticketIds"`
}

// StatusUpdatesRequest payload.
type StatusUpdatesRequest struct {
	TicketIDs []string `json:"ticketIds"`
}

// ValidateTransitionResponse reports a transition check.
type ValidateTransitionResponse struct {
	TicketID        string        `json:"ticketId"`
	RequestedStatus domain.Status `json:"requestedStatus"`
	Allowed         bool          `json:"allowed"`
}
