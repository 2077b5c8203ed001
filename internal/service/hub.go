package service

import "sync"

type Topic string

const (
	TopicStreak       Topic = "streak"
	TopicBalance      Topic = "balance"
	TopicBoosters     Topic = "boosters"
	TopicGrants       Topic = "grants"
	TopicSubscription Topic = "subscription"
	TopicUsage        Topic = "usage"
)

// StateChange tells subscribers that a piece of user state moved. Payload is
// the store's post-mutation value when one is at hand; subscribers that need
// more re-query.
type StateChange struct {
	UserID  int64 `json:"user_id"`
	Topic   Topic `json:"topic"`
	Payload any   `json:"payload,omitempty"`
}

// StateHub fans state changes out to per-user subscribers. Delivery is
// best effort: a subscriber whose buffer is full misses the change.
type StateHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int64]map[int]chan StateChange
}

func NewStateHub() *StateHub {
	return &StateHub{subs: make(map[int64]map[int]chan StateChange)}
}

// Subscribe returns a channel of changes for userID and a cancel func that
// must be called to release it.
func (h *StateHub) Subscribe(userID int64) (<-chan StateChange, func()) {
	ch := make(chan StateChange, 16)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan StateChange)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *StateHub) Publish(change StateChange) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[change.UserID] {
		select {
		case ch <- change:
		default:
		}
	}
}
