package nt4

import "sync"

// Topic is a server-announced channel: a stable id, a name, a value type,
// the pubuid the server echoed back (if this client is also the
// publisher), and an optional property bag. Created on inbound Announce,
// updated only to refresh PubUID on re-announce, destroyed on UnAnnounce.
type Topic struct {
	ID         int32
	Name       string
	PubUID     *int32
	Type       Type
	Properties PublishProperties
}

// PublishedTopic is a topic this client is publishing: a client-assigned
// pubuid, name, type, and optional publish properties. Created by
// PublishTopic, destroyed by Unpublish or Close.
type PublishedTopic struct {
	Name       string
	PubUID     uint32
	Type       Type
	Properties *PublishProperties
}

// asUnpublish returns the subuid-equivalent teardown value for this
// published topic: its pubuid, the only thing an unpublish message needs.
func (t PublishedTopic) asUnpublish() uint32 { return t.PubUID }

// timeTopicID is the reserved, always-present entry for the clock
// synchronization channel.
const timeTopicID int32 = -1

// topicRegistry holds server-announced topics (by server id) and this
// client's own published topics (by pubuid). It is always seeded with the
// synthetic time topic.
type topicRegistry struct {
	mu         sync.RWMutex
	announced  map[int32]Topic
	published  map[uint32]PublishedTopic
}

func newTopicRegistry() *topicRegistry {
	r := &topicRegistry{
		announced: map[int32]Topic{},
		published: map[uint32]PublishedTopic{},
	}
	r.announced[timeTopicID] = Topic{ID: timeTopicID, Name: "Time", Type: Int}
	return r
}

// announce inserts or updates a server-announced topic and returns the
// stored value. With existingPubUIDOnly set and the id already present,
// only the stored PubUID is refreshed (and only when t carries one).
func (r *topicRegistry) announce(t Topic, existingPubUIDOnly bool) Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingPubUIDOnly {
		if existing, ok := r.announced[t.ID]; ok {
			if t.PubUID != nil {
				existing.PubUID = t.PubUID
				r.announced[t.ID] = existing
			}
			return existing
		}
	}
	r.announced[t.ID] = t
	return t
}

// unannounce removes a server-announced topic by id, returning the
// removed value (if any existed).
func (r *topicRegistry) unannounce(id int32) (Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.announced[id]
	if ok {
		delete(r.announced, id)
	}
	return t, ok
}

func (r *topicRegistry) lookup(id int32) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.announced[id]
	return t, ok
}

// Snapshot returns a point-in-time copy of every server-announced topic,
// the read-only accessor §6 requires.
func (r *topicRegistry) Snapshot() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.announced))
	for _, t := range r.announced {
		out = append(out, t)
	}
	return out
}

func (r *topicRegistry) addPublished(t PublishedTopic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[t.PubUID] = t
}

func (r *topicRegistry) removePublished(pubuid uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.published, pubuid)
}

func (r *topicRegistry) lookupPublished(pubuid uint32) (PublishedTopic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.published[pubuid]
	return t, ok
}

// publishedSnapshot returns every currently-published topic, used to
// build the rehydration frame after (re)connect.
func (r *topicRegistry) publishedSnapshot() []PublishedTopic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PublishedTopic, 0, len(r.published))
	for _, t := range r.published {
		out = append(out, t)
	}
	return out
}
