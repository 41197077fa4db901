package jobs

import "sync"

// Hub delivers completion notifications to per-job subscribers. Listeners
// are keyed by job id, so concurrent jobs cannot clobber each other's
// subscriptions the way a single shared callback slot would.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan Job
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan Job)}
}

// Subscribe returns a channel that receives the job exactly once, when it
// reaches a terminal state. The channel is buffered; a subscriber that
// never reads does not block publication.
func (h *Hub) Subscribe(jobID string) <-chan Job {
	ch := make(chan Job, 1)
	h.mu.Lock()
	h.subs[jobID] = append(h.subs[jobID], ch)
	h.mu.Unlock()
	return ch
}

// Publish notifies and drops every subscriber for the job.
func (h *Hub) Publish(job Job) {
	h.mu.Lock()
	subs := h.subs[job.ID]
	delete(h.subs, job.ID)
	h.mu.Unlock()

	for _, ch := range subs {
		ch <- job
		close(ch)
	}
}
