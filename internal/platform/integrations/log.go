package integrations

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Delivery statuses.
const (
	DeliverySucceeded = "success"
	DeliveryFailed    = "failed"
)

// Delivery records one attempt to push an event to a target.
type Delivery struct {
	ID           string        `json:"id"`
	Target       string        `json:"target"`
	EventType    string        `json:"event_type"`
	EventID      string        `json:"event_id"`
	Payload      []byte        `json:"payload"`
	Signature    string        `json:"signature"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body"`
	Duration     time.Duration `json:"duration_ns"`
	Attempt      int           `json:"attempt"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// DeliveryLog persists delivery attempts for troubleshooting.
type DeliveryLog interface {
	Record(ctx context.Context, d *Delivery) error
	List(ctx context.Context, target string, limit, offset int) ([]*Delivery, int, error)
	Get(ctx context.Context, id string) (*Delivery, error)
}

// InMemoryDeliveryLog is a thread-safe, bounded in-memory DeliveryLog.
type InMemoryDeliveryLog struct {
	mu      sync.RWMutex
	entries map[string]*Delivery
	order   []string
	cap     int
}

// NewInMemoryDeliveryLog keeps at most capacity recent deliveries.
func NewInMemoryDeliveryLog(capacity int) *InMemoryDeliveryLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &InMemoryDeliveryLog{
		entries: make(map[string]*Delivery),
		cap:     capacity,
	}
}

func (l *InMemoryDeliveryLog) Record(_ context.Context, d *Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[d.ID] = d
	l.order = append(l.order, d.ID)

	for len(l.order) > l.cap {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
	}
	return nil
}

func (l *InMemoryDeliveryLog) List(_ context.Context, target string, limit, offset int) ([]*Delivery, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []*Delivery
	// Newest first.
	for i := len(l.order) - 1; i >= 0; i-- {
		d := l.entries[l.order[i]]
		if d == nil {
			continue
		}
		if target == "" || d.Target == target {
			filtered = append(filtered, d)
		}
	}

	total := len(filtered)
	if offset >= total {
		return []*Delivery{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (l *InMemoryDeliveryLog) Get(_ context.Context, id string) (*Delivery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, ok := l.entries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s not found", id)
	}
	return d, nil
}
