package fakeapi

import (
	"sync"

	"web-app-firewall-console/internal/core"
)

// subscriberBuffer bounds how far a slow stream may lag before events are
// dropped for it.
const subscriberBuffer = 100

type subscriber struct {
	userID string
	ch     chan core.AttackLog
}

// hub fans published logs out to the open streams.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(userID string) *subscriber {
	s := &subscriber{userID: userID, ch: make(chan core.AttackLog, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// publish never blocks: a full subscriber misses the event.
func (h *hub) publish(entry core.AttackLog, visible func(userID string) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for s := range h.subs {
		if !visible(s.userID) {
			continue
		}
		select {
		case s.ch <- entry:
			sent++
		default:
		}
	}
	return sent
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
