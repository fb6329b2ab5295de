package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"content-batch/internal/models"
)

// Handler receives published events
type Handler func(models.Event)

// Notifier fans lifecycle events out to subscribers.
// Handlers run synchronously in subscription order on the publisher's goroutine.
type Notifier struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
	log      logrus.FieldLogger
}

// NewNotifier creates a notifier; a nil logger discards handler panics silently
func NewNotifier(log logrus.FieldLogger) *Notifier {
	return &Notifier{
		handlers: make(map[int]Handler),
		log:      log,
	}
}

// Subscribe registers h and returns a function that removes it
func (n *Notifier) Subscribe(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.handlers[id] = h
	n.order = append(n.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *Notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.handlers, id)
	for i, v := range n.order {
		if v == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every current subscriber
func (n *Notifier) Publish(ev models.Event) {
	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.order))
	for _, id := range n.order {
		handlers = append(handlers, n.handlers[id])
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		n.deliver(h, ev)
	}
}

func (n *Notifier) deliver(h Handler, ev models.Event) {
	defer func() {
		if r := recover(); r != nil && n.log != nil {
			n.log.WithFields(logrus.Fields{
				"component": "notifier",
				"event":     ev.Type,
				"panic":     r,
			}).Error("event handler panicked")
		}
	}()
	h(ev)
}

// Len returns the number of subscribers
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}
