package syncer

import (
	"sync"
)

// Event levels.
const (
	LevelInfo     = "info"
	LevelProgress = "progress"
	LevelSuccess  = "success"
	LevelError    = "error"
	LevelWarning  = "warning"
)

// Event is one status emission from a sync run.
type Event struct {
	Level      string  `json:"level"`
	Wallet     string  `json:"wallet"`
	Message    string  `json:"message"`
	Current    int     `json:"current,omitempty"`
	Total      int     `json:"total,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
}

// Broadcaster fans sync events out to any number of subscribers. Each
// subscriber owns a bounded mailbox; when a mailbox is full the oldest
// event is dropped so a slow consumer never blocks the producer. There is
// no replay: late subscribers miss earlier events.
type Broadcaster struct {
	mutex       sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a mailbox of the given capacity and returns the event
// channel plus an unsubscribe function.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++
	mailbox := make(chan Event, buffer)
	if b.closed {
		close(mailbox)
		return mailbox, func() {}
	}
	b.subscribers[id] = mailbox

	cancel := func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		if box, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(box)
		}
	}
	return mailbox, cancel
}

// Publish delivers an event to every subscriber, dropping the oldest queued
// event of any mailbox that is full.
func (b *Broadcaster) Publish(event Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, mailbox := range b.subscribers {
		for {
			select {
			case mailbox <- event:
			default:
				select {
				case <-mailbox:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the broadcaster down and closes all mailboxes.
func (b *Broadcaster) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, mailbox := range b.subscribers {
		delete(b.subscribers, id)
		close(mailbox)
	}
}
