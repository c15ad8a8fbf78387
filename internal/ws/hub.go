package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans balance updates out to the subscribers of each account.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[Subscriber]struct{})}
}

// Register subscribes client to updates for accountID.
func (h *Hub) Register(accountID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[accountID]; !ok {
		h.clients[accountID] = make(map[Subscriber]struct{})
	}
	h.clients[accountID][client] = struct{}{}
}

// Unregister removes a client.
func (h *Hub) Unregister(accountID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(accountID, client)
}

// Broadcast sends payload to every subscriber of accountID and drops the ones
// whose send fails. It returns the number of successful deliveries.
func (h *Hub) Broadcast(accountID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients[accountID]))
	for c := range h.clients[accountID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []Subscriber
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			h.remove(accountID, c)
			c.Close()
		}
		h.mu.Unlock()
	}
	return delivered
}

// Subscribers reports how many clients follow accountID.
func (h *Hub) Subscribers(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

func (h *Hub) remove(accountID string, client Subscriber) {
	clients, ok := h.clients[accountID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, accountID)
	}
}
