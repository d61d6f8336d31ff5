// Package sse implements a Server-Sent Events broker that carries the
// bridge's user-visible notifications and note change events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// subscriberBuffer is how many frames a slow client may lag before frames
// are dropped for it.
const subscriberBuffer = 64

// Event is one SSE frame: Type becomes the event name, Data is sent as JSON.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type changeReq struct {
	kind    string
	noteIDs []int64
}

// Broker fans events out to SSE subscribers.
//
// The subscriber set and the change throttle belong to one loop goroutine;
// every public method reaches it over a channel. Publishing never blocks the
// caller, so it is safe from inside main-thread work.
type Broker struct {
	throttle time.Duration

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	changes chan changeReq
	count   chan chan int

	done   chan struct{}
	exited chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker. collection.changed is emitted at most once per
// changeThrottle; a non-positive value means two seconds.
func NewBroker(changeThrottle time.Duration) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}
	b := &Broker{
		throttle: changeThrottle,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		events:   make(chan Event, 256),
		changes:  make(chan changeReq, 256),
		count:    make(chan chan int),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// frame renders ev in the text/event-stream wire format.
func frame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)), nil
}

func (b *Broker) loop() {
	defer close(b.exited)

	subs := make(map[chan []byte]struct{})
	var lastChanged time.Time

	fanOut := func(ev Event) {
		raw, err := frame(ev)
		if err != nil {
			return
		}
		for ch := range subs {
			// A full subscriber misses this frame rather than stalling everyone.
			offer(ch, raw)
		}
	}

	for {
		select {
		case <-b.done:
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.join:
			subs[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.events:
			fanOut(ev)

		case c := <-b.changes:
			fanOut(Event{Type: "note." + c.kind, Data: map[string][]int64{"noteIds": c.noteIDs}})
			if now := time.Now(); now.Sub(lastChanged) >= b.throttle {
				lastChanged = now
				fanOut(Event{Type: "collection.changed", Data: map[string]string{}})
			}

		case reply := <-b.count:
			reply <- len(subs)
		}
	}
}

// offer sends v on ch unless ch is full.
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

// Close stops the loop and closes every subscriber channel, which ends open
// ServeHTTP streams. It is safe to call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
	<-b.exited
}

// Subscribe registers a new client. The returned channel is closed on
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.exited:
		close(ch)
	}
	return ch
}

// Unsubscribe drops a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.exited:
	}
}

// ClientCount returns the number of connected clients, zero once closed.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.exited:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.exited:
		return 0
	}
}

// TryPublish queues ev for every client, dropping it when the broker buffer
// is full. It reports whether the event was queued.
func (b *Broker) TryPublish(ev Event) bool {
	if b.closed.Load() {
		return false
	}
	return offer(b.events, ev)
}

// PublishChange announces a note change (kind is added, updated or deleted)
// and a throttled collection.changed event. It never blocks.
func (b *Broker) PublishChange(kind string, noteIDs ...int64) {
	if b.closed.Load() {
		return
	}
	offer(b.changes, changeReq{kind: kind, noteIDs: noteIDs})
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case raw, open := <-ch:
			if !open {
				return
			}
			_, _ = w.Write(raw)
			flusher.Flush()
		}
	}
}
