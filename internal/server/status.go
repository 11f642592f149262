package server

import (
	"fmt"
	"sync"
)

// State is the install session state
type State int

const (
	// Ready is the initial state
	Ready State = iota
	// SendingManifest is set when the manifest or an icon is served
	SendingManifest
	// SendingPayload is set when the IPA stream starts
	SendingPayload
	// Completed is terminal; Status.Err holds the stream error, if any
	Completed
	// Broken is terminal; Status.Err holds the server failure
	Broken
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case SendingManifest:
		return "sendingManifest"
	case SendingPayload:
		return "sendingPayload"
	case Completed:
		return "completed"
	case Broken:
		return "broken"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can follow s
func (s State) Terminal() bool {
	return s == Completed || s == Broken
}

// Status is a session state plus the error carried by the terminal states
type Status struct {
	State State
	Err   error
}

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s(%v)", s.State, s.Err)
	}
	return s.State.String()
}

// Success reports whether the session completed without error
func (s Status) Success() bool {
	return s.State == Completed && s.Err == nil
}

const subscriberBuffer = 16

type event struct {
	seq    uint64
	status Status
}

type subscriber struct {
	ch   chan Status
	from uint64
	done chan struct{}
	once sync.Once
}

func (s *subscriber) cancel() {
	s.once.Do(func() { close(s.done) })
}

// statusHub holds the current status and publishes every transition, in
// order, from a single dispatcher goroutine.
type statusHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current Status
	seq     uint64
	pending []event
	subs    map[*subscriber]struct{}
	closed  bool
	stop    chan struct{}
	exited  chan struct{}

	onTransition func(Status)
}

func newStatusHub(onTransition func(Status)) *statusHub {
	h := &statusHub{
		current:      Status{State: Ready},
		subs:         make(map[*subscriber]struct{}),
		stop:         make(chan struct{}),
		exited:       make(chan struct{}),
		onTransition: onTransition,
	}
	h.cond = sync.NewCond(&h.mu)
	go h.dispatch()
	return h
}

func (h *statusHub) get() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// set records a transition. Once a terminal state is reached later
// transitions are dropped. It reports whether the transition was applied.
func (h *statusHub) set(st Status) bool {
	h.mu.Lock()
	if h.closed || h.current.State.Terminal() {
		h.mu.Unlock()
		return false
	}
	h.seq++
	h.current = st
	h.pending = append(h.pending, event{seq: h.seq, status: st})
	h.mu.Unlock()
	h.cond.Signal()
	return true
}

func (h *statusHub) subscribe() (<-chan Status, func()) {
	sub := &subscriber{
		ch:   make(chan Status, subscriberBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.ch <- h.current
	sub.from = h.seq
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	return sub.ch, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.cancel()
	}
}

func (h *statusHub) dispatch() {
	defer close(h.exited)
	for {
		h.mu.Lock()
		for len(h.pending) == 0 && !h.closed {
			h.cond.Wait()
		}
		if len(h.pending) == 0 {
			subs := h.subs
			h.subs = nil
			h.mu.Unlock()
			for sub := range subs {
				close(sub.ch)
			}
			return
		}
		batch := h.pending
		h.pending = nil
		subs := make([]*subscriber, 0, len(h.subs))
		for sub := range h.subs {
			subs = append(subs, sub)
		}
		h.mu.Unlock()

		for _, ev := range batch {
			if h.onTransition != nil {
				h.onTransition(ev.status)
			}
			for _, sub := range subs {
				if ev.seq <= sub.from {
					continue
				}
				h.deliver(sub, ev.status)
			}
		}
	}
}

func (h *statusHub) deliver(sub *subscriber, st Status) {
	select {
	case sub.ch <- st:
	case <-sub.done:
	case <-h.stop:
		// shutting down: never block on a subscriber that stopped reading
		select {
		case sub.ch <- st:
		default:
		}
	}
}

// close stops accepting transitions, flushes the pending ones and closes
// every subscriber channel.
func (h *statusHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.stop)
	h.mu.Unlock()
	h.cond.Broadcast()
	<-h.exited
}
