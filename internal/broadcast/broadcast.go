// Package broadcast fans state snapshots out to subscribers.
//
// AddListener returns a new receive-only channel; RemoveListener unsubscribes
// that channel and closes it; Broadcast sends a value to every subscriber.
// Subscribers that fall behind lose their oldest pending value rather than
// blocking the publisher, so a slow event stream only ever skips
// intermediate snapshots.
package broadcast

import (
	"slices"
	"sync"
)

const subscriberChannelBufferLength = 10

type Broadcaster[V any] struct {
	subscribers []channelPair[V]
	lock        sync.Mutex
}

// The receive side is kept alongside the send side so RemoveListener can
// match on the channel value handed out by AddListener.
type channelPair[V any] struct {
	sendCh    chan V
	receiveCh <-chan V
}

func New[V any]() *Broadcaster[V] {
	return &Broadcaster[V]{}
}

// AddListener adds a subscriber and returns a channel for it to receive values.
func (b *Broadcaster[V]) AddListener() <-chan V {
	ch := make(chan V, subscriberChannelBufferLength)
	var receiveCh <-chan V = ch
	b.lock.Lock()
	defer b.lock.Unlock()
	b.subscribers = append(b.subscribers, channelPair[V]{sendCh: ch, receiveCh: receiveCh})
	return receiveCh
}

// RemoveListener removes a subscriber. The parameter is the channel that was
// returned by AddListener.
func (b *Broadcaster[V]) RemoveListener(ch <-chan V) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for i, s := range b.subscribers {
		if s.receiveCh == ch {
			b.subscribers = slices.Delete(b.subscribers, i, i+1)
			close(s.sendCh)
			return
		}
	}
}

func (b *Broadcaster[V]) hasListeners() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subscribers) > 0
}

// Broadcast sends value to all current subscribers without blocking.
func (b *Broadcaster[V]) Broadcast(value V) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, s := range b.subscribers {
		deliver(s.sendCh, value)
	}
}

func deliver[V any](ch chan V, value V) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		// Buffer full: drop the oldest pending value and retry.
		select {
		case <-ch:
		default:
		}
	}
}

// Close closes all current subscriber channels.
func (b *Broadcaster[V]) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, s := range b.subscribers {
		close(s.sendCh)
	}
	b.subscribers = nil
}
