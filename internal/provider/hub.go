package provider

import "sync"

// hub fans auth events out to subscribers.  Each subscriber owns a queue
// drained by its own goroutine, so a slow listener never blocks the
// emitter and per-subscriber order matches emit order.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

func newHub() *hub { return &hub{subs: map[int]*subscriber{}} }

// subscribe registers l and enqueues first as its first event.
func (h *hub) subscribe(l Listener, first Event) Subscription {
	s := &subscriber{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	s.queue = append(s.queue, first)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()

	go s.run(l)
	return &subscription{h: h, id: id}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.push(ev)
	}
}

// remove drops the subscriber and waits for a listener call in progress
// to return.  Queued events are discarded.
func (h *hub) remove(id int) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		s.close()
		<-s.done
	}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run(l Listener) {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		l(ev)
	}
}

type subscription struct {
	h    *hub
	id   int
	once sync.Once
}

// Unsubscribe must not be called from the listener itself: it waits for
// the listener to return.
func (s *subscription) Unsubscribe() { s.once.Do(func() { s.h.remove(s.id) }) }
