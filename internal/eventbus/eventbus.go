// Package eventbus implements the topic-based multi-subscriber pub/sub
// fabric: metricUpdate and alarmStateChange events, best-effort fan-out
// with per-subscriber bounded buffers, and a small replay ring for SSE
// reconnects.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joyautomation/mantle/internal/metrics"
)

const (
	TopicMetricUpdate    = "metricUpdate"
	TopicAlarmStateChange = "alarmStateChange"

	defaultRingSize  = 1024
	subscriberBuffer = 64
)

// Event is a single published message. Payload is topic-specific JSON-able
// data; IdentityKey is used for identity-prefix filtering (empty for
// events that are not identity-scoped).
type Event struct {
	Seq         uint64
	Topic       string
	IdentityKey string
	Payload     any
}

// Filter narrows a subscription to one or more topics and, optionally, an
// identity-key prefix (e.g. "G1|N1|" to only receive events for that node).
type Filter struct {
	Topics          []string
	IdentityPrefix  string
}

func (f Filter) matches(e Event) bool {
	if len(f.Topics) > 0 {
		found := false
		for _, t := range f.Topics {
			if t == e.Topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.IdentityPrefix != "" && !strings.HasPrefix(e.IdentityKey, f.IdentityPrefix) {
		return false
	}
	return true
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Bus is the process-wide event fabric. One Bus instance is created per
// engine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextSubID   uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringLen  int
	ringMu   sync.Mutex
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		ring:        make([]Event, defaultRingSize),
		ringSize:    defaultRingSize,
	}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. The channel is closed when cancel is called.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), filter: filter}
	b.subscribers[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish fans out an event to every matching subscriber. Delivery is
// best-effort: a subscriber whose buffer is full has the event dropped
// rather than blocking the publisher.
func (b *Bus) Publish(topic, identityKey string, payload any) Event {
	e := Event{
		Seq:         b.seq.Add(1),
		Topic:       topic,
		IdentityKey: identityKey,
		Payload:     payload,
	}
	metrics.EventsPublishedTotal.Inc()

	b.ringMu.Lock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % b.ringSize
	if b.ringLen < b.ringSize {
		b.ringLen++
	}
	b.ringMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// subscriber is behind; drop rather than block the publisher.
		}
	}
	return e
}

// ReplaySince returns buffered events with Seq > lastSeq matching filter,
// oldest first — used by SSE reconnects (Last-Event-ID) to backfill the gap.
func (b *Bus) ReplaySince(lastSeq uint64, filter Filter) []Event {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	out := make([]Event, 0, b.ringLen)
	start := (b.ringHead - b.ringLen + b.ringSize) % b.ringSize
	for i := 0; i < b.ringLen; i++ {
		e := b.ring[(start+i)%b.ringSize]
		if e.Seq > lastSeq && filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// SubscriberCount reports how many active subscribers are attached, used by
// the metrics collector, which exposes it as a gauge.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
