package capture

import "sync"

// subscriber wraps a snapshot channel with safe close handling
type subscriber struct {
	ch        chan Snapshot
	closeOnce sync.Once
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		close(sub.ch)
	})
}

// send delivers the snapshot without blocking. A slow reader loses the
// oldest pending snapshot, so it always ends up with the latest one.
func (sub *subscriber) send(s Snapshot) {
	select {
	case sub.ch <- s:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- s:
	default:
	}
}

// broadcaster fans snapshots out to subscribers
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*subscriber]struct{})}
}

func (b *broadcaster) subscribe(initial Snapshot) (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, 8)}
	sub.ch <- initial

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			sub.close()
		}
	}
}

// publish holds the read lock while sending so no channel is closed mid-send
func (b *broadcaster) publish(s Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.send(s)
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.close()
		delete(b.subs, sub)
	}
}
