// Package events fans task state changes out to subscribers such as the SSE
// stream.
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
)

type Type string

const (
	TaskCreated Type = "task_created"
	TaskUpdated Type = "task_updated"
	TaskRemoved Type = "task_removed"
)

// Event carries a snapshot of the task after the change. For TaskRemoved
// only Task.ID is meaningful.
type Event struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Task      domain.Task `json:"task"`
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

type subscription struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a non-blocking publish/subscribe hub. A subscriber whose buffer is
// full misses events rather than stalling the publisher.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	logger     *logrus.Logger
}

func NewBus(bufferSize int, logger *logrus.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{bufferSize: bufferSize, logger: logger}
}

// Subscribe registers fn for the given event types, or for every type when
// none are given. The returned function unsubscribes.
func (b *Bus) Subscribe(fn Subscriber, types ...Type) func() {
	sub := &subscription{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			b.deliver(fn, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(sub.ch)
					break
				}
			}
		})
	}
}

func (b *Bus) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("event subscriber panicked on %s: %v", ev.Type, r)
		}
	}()
	fn(ev)
}

// Publish delivers ev to every interested subscriber without blocking.
func (b *Bus) Publish(t Type, task domain.Task) {
	ev := Event{Type: t, Timestamp: time.Now().UTC(), Task: task}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(t) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.WithField("task_id", task.ID).Debugf("event %s dropped for slow subscriber", t)
		}
	}
}

// Close drops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
