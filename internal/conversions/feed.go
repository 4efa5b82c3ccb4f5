package conversions

import (
	"context"
	"sync"
)

// Feed wraps a Store and fans every successfully written record out to live
// subscribers. Slow subscribers miss records rather than blocking writers.
type Feed struct {
	Store

	mu          sync.Mutex
	nextSubID   int
	subscribers map[int]chan Record
}

func NewFeed(store Store) *Feed {
	return &Feed{Store: store, subscribers: make(map[int]chan Record)}
}

func (f *Feed) Record(ctx context.Context, rec Record) error {
	if err := f.Store.Record(ctx, rec); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of new records and a function that cancels the
// subscription and closes the channel.
func (f *Feed) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, 64)
	f.mu.Lock()
	f.nextSubID++
	id := f.nextSubID
	f.subscribers[id] = ch
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(c)
		}
	}
}

func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
