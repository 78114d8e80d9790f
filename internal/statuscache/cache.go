package statuscache

import (
	"hash/fnv"
	"sync"

	"github.com/spec-kit/status-engine/internal/domain"
)

// HistoryLimit bounds the number of records retained per ticket. The oldest
// entries are evicted first once the limit is reached.
const HistoryLimit = 10

const shardCount = 32

// Cache is a process-lifetime store of per-ticket status histories. Appends
// for the same ticket are serialized by the owning shard; appends for
// different tickets proceed independently. Entries are never expired, only
// bounded per ticket by HistoryLimit.
type Cache struct {
	shards [shardCount]shard
}

type shard struct {
	mu        sync.RWMutex
	histories map[string][]domain.StatusRecord
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].histories = make(map[string][]domain.StatusRecord)
	}
	return c
}

func (c *Cache) shardFor(ticketID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	return &c.shards[h.Sum32()%shardCount]
}

// Append adds a record to the ticket's history, evicting from the front when
// the history exceeds HistoryLimit. The append is atomic per ticket: readers
// observe either the pre- or post-append history, never a partial one.
func (c *Cache) Append(ticketID string, record domain.StatusRecord) {
	s := c.shardFor(ticketID)
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.histories[ticketID], record)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	s.histories[ticketID] = history
}

// History returns a copy of the ticket's history and whether one exists.
func (c *Cache) History(ticketID string) ([]domain.StatusRecord, bool) {
	s := c.shardFor(ticketID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.histories[ticketID]
	if !ok {
		return nil, false
	}
	out := make([]domain.StatusRecord, len(history))
	copy(out, history)
	return out, true
}

// CurrentStatus returns the status of the last appended record, or
// StatusOpen when the ticket has no cached history.
func (c *Cache) CurrentStatus(ticketID string) domain.Status {
	s := c.shardFor(ticketID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.histories[ticketID]
	if len(history) == 0 {
		return domain.StatusOpen
	}
	return history[len(history)-1].Status
}

// Len reports the number of tickets with cached history.
func (c *Cache) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		total += len(s.histories)
		s.mu.RUnlock()
	}
	return total
}
