package service

import (
	"sync"

	"github.com/mkravets/notesync/models"
)

// StatusPublisher broadcasts sync status transitions to all current
// subscribers. Delivery is synchronous and in registration order, with no
// buffering or coalescing: observers that need debouncing implement it
// themselves.
type StatusPublisher struct {
	mu     sync.RWMutex
	nextID int
	order  []int
	subs   map[int]func(models.SyncStatus)
}

func NewStatusPublisher() *StatusPublisher {
	return &StatusPublisher{subs: map[int]func(models.SyncStatus){}}
}

// Subscribe registers a callback and returns the token to unsubscribe with.
func (p *StatusPublisher) Subscribe(fn func(models.SyncStatus)) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.order = append(p.order, id)
	return id
}

// Unsubscribe removes the subscription with the given token. Unknown tokens
// are ignored.
func (p *StatusPublisher) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[id]; !ok {
		return
	}
	delete(p.subs, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Publish delivers the status to every subscriber, oldest subscription
// first. The callback list is copied first so a subscriber may unsubscribe
// itself during delivery.
func (p *StatusPublisher) Publish(status models.SyncStatus) {
	p.mu.RLock()
	callbacks := make([]func(models.SyncStatus), 0, len(p.order))
	for _, id := range p.order {
		callbacks = append(callbacks, p.subs[id])
	}
	p.mu.RUnlock()

	for _, fn := range callbacks {
		fn(status)
	}
}
