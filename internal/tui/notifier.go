package tui

import "sync"

// Notifier queues wizard alerts until the model shows them on the status line.
// Alerts may arrive from command goroutines.
type Notifier struct {
	mu      sync.Mutex
	pending []string
}

func (n *Notifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, message)
}

// Drain returns and clears the queued alerts, oldest first.
func (n *Notifier) Drain() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}
