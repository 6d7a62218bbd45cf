package nt4

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MessageData is what a subscription actually delivers: the topic name,
// the server timestamp at which the value was produced, its type, and
// the decoded value.
type MessageData struct {
	Topic     string
	Timestamp uint32
	Type      Type
	Value     any
}

const subscriptionQueueCapacity = 100

// Subscription is the user-facing handle returned by Subscribe. The
// registry never owns it directly; it holds a non-owning observer (an
// atomic "alive" flag) so it can notice the handle is gone without
// keeping it alive itself — the Go substitute for the source's
// Weak<SubscriptionData> back-reference.
type Subscription struct {
	subuid int32
	alive  *int32
	values chan MessageData
	once   sync.Once
	client *Client
}

// Values returns the channel consumers drain. The channel is never
// closed: once the subscription is torn down (Close, or eviction after
// its queue filled up) it simply receives no further values.
func (s *Subscription) Values() <-chan MessageData { return s.values }

// Close unsubscribes from the server and releases the handle. Safe to
// call more than once and safe to never call (a finalizer is registered
// as a backstop, but relying on GC timing for cleanup is discouraged).
func (s *Subscription) Close() {
	s.once.Do(func() {
		atomic.StoreInt32(s.alive, 0)
		if s.client != nil {
			s.client.handleSubscriptionClosed(s.subuid)
		}
	})
}

func (s *Subscription) isAlive() bool { return atomic.LoadInt32(s.alive) != 0 }

// subEntry is the registry-side half of a subscription: what routing
// needs, independent of whether the user's handle is still reachable.
type subEntry struct {
	subuid int32
	topics map[string]struct{}
	prefix bool
	opts   *SubscriptionOptions
	alive  *int32
	queue  chan MessageData
}

func (e *subEntry) matches(topic string) bool {
	for t := range e.topics {
		if e.prefix {
			if len(topic) >= len(t) && topic[:len(t)] == t {
				return true
			}
		} else if topic == t {
			return true
		}
	}
	return false
}

// subscriptionRegistry holds every active subscription, keyed by subuid.
type subscriptionRegistry struct {
	mu      sync.Mutex
	entries map[int32]*subEntry
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{entries: map[int32]*subEntry{}}
}

// add registers a new subscription entry and returns the user-facing
// handle that shares its queue and alive flag. A runtime finalizer is attached to the handle as a last-resort
// safety net for consumers that never call Close.
func (r *subscriptionRegistry) add(subuid int32, topics []string, opts *SubscriptionOptions, client *Client) *Subscription {
	topicSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		topicSet[t] = struct{}{}
	}
	alive := new(int32)
	*alive = 1

	entry := &subEntry{
		subuid: subuid,
		topics: topicSet,
		prefix: opts.prefixMatch(),
		opts:   opts,
		alive:  alive,
		queue:  make(chan MessageData, subscriptionQueueCapacity),
	}

	sub := &Subscription{subuid: subuid, alive: alive, values: entry.queue, client: client}
	runtime.SetFinalizer(sub, func(s *Subscription) { atomic.StoreInt32(s.alive, 0) })

	r.mu.Lock()
	r.entries[subuid] = entry
	r.mu.Unlock()

	return sub
}

// remove deletes a subscription by subuid, e.g. on explicit Unsubscribe.
func (r *subscriptionRegistry) remove(subuid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, subuid)
}

// route delivers one inbound value to every live, matching subscription.
// It returns the subuids of subscriptions evicted because their consumer
// queue was full — the caller is responsible for sending `unsubscribe`
// for each, outside of any lock this method holds, to avoid the lock
// ordering hazard of calling back into the send path while the registry
// mutex is held.
func (r *subscriptionRegistry) route(topic string, ts uint32, typ Type, value any) (evicted []int32) {
	md := MessageData{Topic: topic, Timestamp: ts, Type: typ, Value: value}

	r.mu.Lock()
	defer r.mu.Unlock()

	for subuid, entry := range r.entries {
		if atomic.LoadInt32(entry.alive) == 0 {
			delete(r.entries, subuid)
			continue
		}
		if !entry.matches(topic) {
			continue
		}
		select {
		case entry.queue <- md:
		default:
			delete(r.entries, subuid)
			evicted = append(evicted, subuid)
		}
	}
	return evicted
}

// pruneDead removes orphaned subscriptions (handle dropped, finalizer or
// Close already fired) without requiring an inbound value to trigger it.
// Called opportunistically during rehydration.
func (r *subscriptionRegistry) pruneDead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subuid, entry := range r.entries {
		if atomic.LoadInt32(entry.alive) == 0 {
			delete(r.entries, subuid)
		}
	}
}

// snapshot returns the (subuid, topics, options) of every live subscription,
// used to build the rehydration frame. The full options are carried
// verbatim so a reconnect resends periodic/all/topics-only/prefix exactly
// as the caller originally requested them, not just the prefix flag.
type subscriptionSnapshot struct {
	subuid int32
	topics []string
	opts   *SubscriptionOptions
}

func (r *subscriptionRegistry) snapshot() []subscriptionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]subscriptionSnapshot, 0, len(r.entries))
	for subuid, entry := range r.entries {
		if atomic.LoadInt32(entry.alive) == 0 {
			delete(r.entries, subuid)
			continue
		}
		topics := make([]string, 0, len(entry.topics))
		for t := range entry.topics {
			topics = append(topics, t)
		}
		out = append(out, subscriptionSnapshot{subuid: subuid, topics: topics, opts: entry.opts})
	}
	return out
}
