package webhooks

import (
	"fmt"
	"sync"
	"time"
)

// retryDescriptor is one pending re-delivery of an event to one endpoint.
type retryDescriptor struct {
	event       Event
	endpointID  string
	attempt     int
	nextRetryAt time.Time
	lastError   string
}

func (r retryDescriptor) key() string {
	return fmt.Sprintf("%s:%s", r.event.ID, r.endpointID)
}

// retryQueue holds pending deliveries keyed by event+endpoint so a newer
// failure for the same pair replaces the older descriptor.
type retryQueue struct {
	mu      sync.Mutex
	pending map[string]retryDescriptor
}

func newRetryQueue() *retryQueue {
	return &retryQueue{pending: make(map[string]retryDescriptor)}
}

func (q *retryQueue) put(desc retryDescriptor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[desc.key()] = desc
}

// takeDue removes and returns every descriptor whose retry time has passed.
func (q *retryQueue) takeDue(now time.Time) []retryDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []retryDescriptor
	for key, desc := range q.pending {
		if !desc.nextRetryAt.After(now) {
			due = append(due, desc)
			delete(q.pending, key)
		}
	}
	return due
}

func (q *retryQueue) removeEndpoint(endpointID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, desc := range q.pending {
		if desc.endpointID == endpointID {
			delete(q.pending, key)
		}
	}
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
