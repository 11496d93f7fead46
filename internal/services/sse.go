package services

import (
	"sync"
)

const jobEventBuffer = 100

// JobEventHub fans report job snapshots out to SSE clients.
type JobEventHub struct {
	clients map[string]chan JobSnapshot
	mu      sync.RWMutex
}

func NewJobEventHub() *JobEventHub {
	return &JobEventHub{
		clients: make(map[string]chan JobSnapshot),
	}
}

// Subscribe registers a client and returns its event channel.
func (h *JobEventHub) Subscribe(clientID string) <-chan JobSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan JobSnapshot, jobEventBuffer)
	h.clients[clientID] = ch
	return ch
}

func (h *JobEventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish never blocks. A client whose buffer is full misses the event and
// can still poll the status endpoint.
func (h *JobEventHub) Publish(snapshot *JobSnapshot) {
	if snapshot == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- *snapshot:
		default:
		}
	}
}

func (h *JobEventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
