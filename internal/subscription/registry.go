package subscription

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/domain"
)

// Callback receives a status update for a subscribed ticket.
type Callback func(domain.StatusUpdate)

// Registry holds per-ticket callbacks invoked when the consumer applies a
// new history entry. Subscriptions live only for the process lifetime.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[string]map[string]Callback
	owners map[string]string // token -> ticketID
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		subs:   make(map[string]map[string]Callback),
		owners: make(map[string]string),
	}
}

// Subscribe registers a callback for a ticket and returns an unsubscribe token.
func (r *Registry) Subscribe(ticketID string, cb Callback) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[ticketID] == nil {
		r.subs[ticketID] = make(map[string]Callback)
	}
	r.subs[ticketID][token] = cb
	r.owners[token] = ticketID
	return token
}

// Unsubscribe removes the callback registered under token. Unknown tokens
// are ignored.
func (r *Registry) Unsubscribe(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticketID, ok := r.owners[token]
	if !ok {
		return
	}
	delete(r.owners, token)
	if callbacks := r.subs[ticketID]; callbacks != nil {
		delete(callbacks, token)
		if len(callbacks) == 0 {
			delete(r.subs, ticketID)
		}
	}
}

// Count reports the number of callbacks registered for a ticket.
func (r *Registry) Count(ticketID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[ticketID])
}

// Notify invokes every callback registered for the update's ticket. Each
// callback runs isolated: a panicking subscriber is logged and must not
// prevent the remaining subscribers from being notified.
func (r *Registry) Notify(update domain.StatusUpdate) {
	r.mu.RLock()
	callbacks := make([]Callback, 0, len(r.subs[update.TicketID]))
	for _, cb := range r.subs[update.TicketID] {
		callbacks = append(callbacks, cb)
	}
	r.mu.RUnlock()

	for _, cb := range callbacks {
		r.invoke(cb, update)
	}
}

func (r *Registry) invoke(cb Callback, update domain.StatusUpdate) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panic",
				zap.String("ticket_id", update.TicketID),
				zap.Any("panic", rec))
		}
	}()
	cb(update)
}
