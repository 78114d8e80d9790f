package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/authority"
	"github.com/spec-kit/status-engine/internal/domain"
	"github.com/spec-kit/status-engine/internal/statuscache"
	"github.com/spec-kit/status-engine/internal/subscription"
	"github.com/spec-kit/status-engine/pkg/util"
)

// Authority is the remote status authority consumed by the facade.
type Authority interface {
	GetStatus(ctx context.Context, ticketID string) (*authority.StatusSnapshot, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.Status, updatedBy, reason string) (*authority.StatusSnapshot, error)
	History(ctx context.Context, ticketID string, query authority.HistoryQuery) ([]domain.StatusRecord, error)
	BatchStatus(ctx context.Context, ticketIDs []string) (map[string]authority.BatchEntry, error)
	StatusUpdates(ctx context.Context, ticketIDs []string, since *time.Time) ([]domain.StatusRecord, error)
}

// EventPublisher announces status transitions on the bus, fire-and-forget.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, ticketID string, previous, next domain.Status, updatedBy, reason string) bool
}

// StatusResult is the facade's answer to a status query.
type StatusResult struct {
	TicketID      string                `json:"ticketId"`
	CurrentStatus domain.Status         `json:"currentStatus"`
	History       []domain.StatusRecord `json:"history"`
	FromCache     bool                  `json:"fromCache,omitempty"`
}

// StatusService is the public facade over validator, cache, registry,
// publisher and the remote authority. Reads degrade to cached or default
// data instead of failing; writes fail hard since they are writes of record.
type StatusService struct {
	authority Authority
	cache     *statuscache.Cache
	registry  *subscription.Registry
	publisher EventPublisher
	logger    *zap.Logger
}

// Dependencies bundles collaborators for the facade.
type Dependencies struct {
	Authority Authority
	Cache     *statuscache.Cache
	Registry  *subscription.Registry
	Publisher EventPublisher
	Logger    *zap.Logger
}

// NewStatusService constructs the facade.
func NewStatusService(deps Dependencies) *StatusService {
	return &StatusService{
		authority: deps.Authority,
		cache:     deps.Cache,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		logger:    deps.Logger,
	}
}

// GetStatus serves from the cache when possible, otherwise reads through to
// the authority. It never fails outward: a 404 or an unreachable authority
// resolves to the default open status with empty history.
func (s *StatusService) GetStatus(ctx context.Context, ticketID string) *StatusResult {
	if history, ok := s.cache.History(ticketID); ok && len(history) > 0 {
		return &StatusResult{
			TicketID:      ticketID,
			CurrentStatus: history[len(history)-1].Status,
			History:       history,
			FromCache:     true,
		}
	}

	snapshot, err := s.authority.GetStatus(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, authority.ErrNotFound) {
			s.logger.Warn("status read degraded to default",
				zap.String("ticket_id", ticketID), zap.Error(err))
			if history, ok := s.cache.History(ticketID); ok && len(history) > 0 {
				return &StatusResult{
					TicketID:      ticketID,
					CurrentStatus: history[len(history)-1].Status,
					History:       history,
					FromCache:     true,
				}
			}
		}
		return defaultResult(ticketID)
	}

	for _, record := range snapshot.History {
		s.mergeRecord(record)
	}
	result := &StatusResult{
		TicketID:      ticketID,
		CurrentStatus: snapshot.CurrentStatus,
		History:       snapshot.History,
	}
	if result.CurrentStatus == "" {
		result.CurrentStatus = domain.StatusOpen
	}
	if result.History == nil {
		result.History = []domain.StatusRecord{}
	}
	return result
}

// UpdateStatus persists a status change through the authority. Unlike reads
// this is allowed to fail: a write cannot silently succeed.
func (s *StatusService) UpdateStatus(ctx context.Context, ticketID string, status domain.Status, updatedBy, reason string) (*StatusResult, error) {
	previous := s.cache.CurrentStatus(ticketID)

	snapshot, err := s.authority.UpdateStatus(ctx, ticketID, status, updatedBy, reason)
	if err != nil {
		if errors.Is(err, authority.ErrNotFound) {
			return nil, util.NewNotFound("ticket status", map[string]any{"ticketId": ticketID})
		}
		return nil, util.NewAuthorityUnavailable(err)
	}

	for _, record := range snapshot.History {
		s.mergeRecord(record)
	}

	if s.publisher != nil {
		s.publisher.PublishStatusChanged(ctx, ticketID, previous, status, updatedBy, reason)
	}

	result := &StatusResult{
		TicketID:      ticketID,
		CurrentStatus: snapshot.CurrentStatus,
		History:       snapshot.History,
	}
	if result.CurrentStatus == "" {
		result.CurrentStatus = status
	}
	if result.History == nil {
		result.History = []domain.StatusRecord{}
	}
	return result, nil
}

// ValidateStatusTransition checks the requested transition against the
// ticket's current status. When the current-status lookup itself fails the
// transition is allowed (fail open), trading consistency for availability.
func (s *StatusService) ValidateStatusTransition(ctx context.Context, ticketID string, next domain.Status) bool {
	current, err := s.lookupCurrentStatus(ctx, ticketID)
	if err != nil {
		s.logger.Warn("transition check unavailable, allowing transition",
			zap.String("ticket_id", ticketID),
			zap.String("requested_status", string(next)),
			zap.Error(err))
		return true
	}
	return domain.CanTransition(current, next)
}

// GetStatusHistory fetches filtered history from the authority, degrading to
// the cached history (or an empty one) when the authority cannot serve it.
func (s *StatusService) GetStatusHistory(ctx context.Context, ticketID string, query authority.HistoryQuery) []domain.StatusRecord {
	records, err := s.authority.History(ctx, ticketID, query)
	if err != nil {
		if errors.Is(err, authority.ErrNotFound) {
			return []domain.StatusRecord{}
		}
		s.logger.Warn("history read degraded to cache",
			zap.String("ticket_id", ticketID), zap.Error(err))
		if history, ok := s.cache.History(ticketID); ok {
			return history
		}
		return []domain.StatusRecord{}
	}
	if records == nil {
		records = []domain.StatusRecord{}
	}
	return records
}

// GetBatchStatus resolves many tickets in one remote round trip. When the
// authority is down the response is rebuilt entry-by-entry from the cache,
// with unknown tickets reported as such.
func (s *StatusService) GetBatchStatus(ctx context.Context, ticketIDs []string) map[string]authority.BatchEntry {
	entries, err := s.authority.BatchStatus(ctx, ticketIDs)
	if err == nil && entries != nil {
		return entries
	}
	if err != nil {
		s.logger.Warn("batch status degraded to cache", zap.Error(err))
	}

	entries = make(map[string]authority.BatchEntry, len(ticketIDs))
	for _, ticketID := range ticketIDs {
		history, ok := s.cache.History(ticketID)
		if !ok || len(history) == 0 {
			entries[ticketID] = authority.BatchEntry{CurrentStatus: domain.StatusUnknown}
			continue
		}
		last := history[len(history)-1]
		timestamp := last.Timestamp
		entries[ticketID] = authority.BatchEntry{CurrentStatus: last.Status, LastUpdated: &timestamp}
	}
	return entries
}

// GetStatusUpdates polls the authority for records after the since watermark
// and merges them into the cache, de-duplicating on timestamp equality with
// the last cached entry. It returns the records that were actually applied.
func (s *StatusService) GetStatusUpdates(ctx context.Context, ticketIDs []string, since *time.Time) ([]domain.StatusRecord, error) {
	updates, err := s.authority.StatusUpdates(ctx, ticketIDs, since)
	if err != nil {
		return nil, util.NewAuthorityUnavailable(err)
	}

	applied := make([]domain.StatusRecord, 0, len(updates))
	for _, record := range updates {
		if s.mergeRecord(record) {
			applied = append(applied, record)
		}
	}
	return applied, nil
}

// Subscribe registers a callback invoked whenever the consumer applies a new
// history entry for the ticket.
func (s *StatusService) Subscribe(ticketID string, cb subscription.Callback) string {
	return s.registry.Subscribe(ticketID, cb)
}

// Unsubscribe removes a previously registered callback.
func (s *StatusService) Unsubscribe(token string) {
	s.registry.Unsubscribe(token)
}

// lookupCurrentStatus resolves the ticket's current status from the cache or
// the authority. Unlike GetStatus it surfaces authority failures so that
// callers can decide their own degradation policy.
func (s *StatusService) lookupCurrentStatus(ctx context.Context, ticketID string) (domain.Status, error) {
	if history, ok := s.cache.History(ticketID); ok && len(history) > 0 {
		return history[len(history)-1].Status, nil
	}

	snapshot, err := s.authority.GetStatus(ctx, ticketID)
	if err != nil {
		if errors.Is(err, authority.ErrNotFound) {
			return domain.StatusOpen, nil
		}
		return "", err
	}

	for _, record := range snapshot.History {
		s.mergeRecord(record)
	}
	if snapshot.CurrentStatus == "" {
		return domain.StatusOpen, nil
	}
	return snapshot.CurrentStatus, nil
}

// mergeRecord appends a record unless the last cached entry already carries
// the same timestamp. Duplicate application from redelivery is tolerated;
// this only suppresses the common exact-replay case.
func (s *StatusService) mergeRecord(record domain.StatusRecord) bool {
	history, ok := s.cache.History(record.TicketID)
	if ok && len(history) > 0 && history[len(history)-1].Timestamp.Equal(record.Timestamp) {
		return false
	}
	s.cache.Append(record.TicketID, record)
	return true
}

func defaultResult(ticketID string) *StatusResult {
	return &StatusResult{
		TicketID:      ticketID,
		CurrentStatus: domain.StatusOpen,
		History:       []domain.StatusRecord{},
	}
}
