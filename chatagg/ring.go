package chatagg

// ring is a fixed-capacity circular buffer of messages. Pushing beyond
// capacity evicts the oldest entry in O(1); callers hold the aggregator lock.
type ring struct {
	items []Message
	head  int // next write position
	count int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultScrollCap
	}
	return &ring{items: make([]Message, capacity)}
}

// push appends a message and returns how many entries were evicted (0 or 1).
func (r *ring) push(m Message) int {
	evicted := 0
	if r.count == len(r.items) {
		evicted = 1
	} else {
		r.count++
	}
	r.items[r.head] = m
	r.head = (r.head + 1) % len(r.items)
	return evicted
}

// all returns the retained messages, oldest first.
func (r *ring) all() []Message {
	out := make([]Message, r.count)
	start := (r.head - r.count + len(r.items)) % len(r.items)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

func (r *ring) len() int { return r.count }

// resized copies the newest entries into a buffer of the given capacity,
// dropping the oldest overflow.
func (r *ring) resized(capacity int) *ring {
	next := newRing(capacity)
	msgs := r.all()
	if len(msgs) > capacity {
		msgs = msgs[len(msgs)-capacity:]
	}
	for _, m := range msgs {
		next.push(m)
	}
	return next
}
