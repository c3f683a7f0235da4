// Package attention implements the Attention Queue (§4.6): two
// newest-first streams (review and informational) fed by State Resolver
// transitions, deduplicated within a window and bounded by LRU eviction.
//
// Grounded on the append+evict idiom in panetap's replayRing, generalized
// from a byte ring to an ordered item list with key-based dedup.
package attention

import (
	"strconv"
	"time"

	"agtmuxd/internal/protocol"
)

// Stream names the two ordered lists (§4.6).
type Stream string

const (
	StreamReview         Stream = "review"
	StreamInformational  Stream = "informational"
)

// Item is one queue entry.
type Item struct {
	ID             string
	Stream         Stream
	PaneID         string
	Kind           string
	CreatedAt      time.Time
	LastSignalAt   time.Time
	Unread         bool
	AcknowledgedAt time.Time
}

// Queue owns both streams. Each stream is kept newest-first; eviction
// drops from the tail (oldest) once QueueLimit is exceeded.
type Queue struct {
	dedupWindow time.Duration
	queueLimit  int

	items map[Stream][]*Item
	byKey map[string]*Item // key = string(stream)+"\x00"+pane_id+"\x00"+kind

	seq int
}

func New(dedupWindow time.Duration, queueLimit int) *Queue {
	return &Queue{
		dedupWindow: dedupWindow,
		queueLimit:  queueLimit,
		items:       map[Stream][]*Item{StreamReview: nil, StreamInformational: nil},
		byKey:       make(map[string]*Item),
	}
}

func dedupKey(stream Stream, paneID, kind string) string {
	return string(stream) + "\x00" + paneID + "\x00" + kind
}

// EmitReview adds (or dedups) a review item. It does not look at the
// previous attention state; the caller invokes it only on a transition
// from non-actionable to actionable attention.
func (q *Queue) EmitReview(paneID, kind string, now time.Time) *Item {
	return q.emit(StreamReview, paneID, kind, now)
}

// EmitInformational implements the task_completed rule.
func (q *Queue) EmitInformational(paneID, kind string, now time.Time) *Item {
	return q.emit(StreamInformational, paneID, kind, now)
}

func (q *Queue) emit(stream Stream, paneID, kind string, now time.Time) *Item {
	key := dedupKey(stream, paneID, kind)
	if existing, ok := q.byKey[key]; ok && now.Sub(existing.LastSignalAt) <= q.dedupWindow {
		existing.LastSignalAt = now
		existing.Unread = true
		return existing
	}

	q.seq++
	item := &Item{
		ID:           itemID(stream, paneID, kind, q.seq),
		Stream:       stream,
		PaneID:       paneID,
		Kind:         kind,
		CreatedAt:    now,
		LastSignalAt: now,
		Unread:       true,
	}
	q.byKey[key] = item
	q.items[stream] = append([]*Item{item}, q.items[stream]...)
	q.evict(stream)
	return item
}

func itemID(stream Stream, paneID, kind string, seq int) string {
	return string(stream) + ":" + paneID + ":" + kind + ":" + strconv.Itoa(seq)
}

// evict drops items from the tail of stream while it exceeds QueueLimit.
func (q *Queue) evict(stream Stream) {
	list := q.items[stream]
	for len(list) > q.queueLimit {
		tail := list[len(list)-1]
		list = list[:len(list)-1]
		for k, v := range q.byKey {
			if v == tail {
				delete(q.byKey, k)
				break
			}
		}
	}
	q.items[stream] = list
}

// List returns stream's items, newest first.
func (q *Queue) List(stream Stream) []*Item {
	out := make([]*Item, len(q.items[stream]))
	copy(out, q.items[stream])
	return out
}

// Acknowledge marks id's item acknowledged and clears unread.
func (q *Queue) Acknowledge(id string, now time.Time) bool {
	for _, list := range q.items {
		for _, item := range list {
			if item.ID == id {
				item.AcknowledgedAt = now
				item.Unread = false
				return true
			}
		}
	}
	return false
}

// AcknowledgeAll acknowledges every currently-unread item in stream.
func (q *Queue) AcknowledgeAll(stream Stream, now time.Time) int {
	n := 0
	for _, item := range q.items[stream] {
		if item.Unread {
			item.Unread = false
			item.AcknowledgedAt = now
			n++
		}
	}
	return n
}

// UnreadCountsByPane is a convenience view the Snapshot Projector can use
// to decorate PaneItem.AttentionState without walking both streams itself.
func (q *Queue) UnreadCountsByPane() map[string]int {
	counts := make(map[string]int)
	for _, list := range q.items {
		for _, item := range list {
			if item.Unread {
				counts[item.PaneID]++
			}
		}
	}
	return counts
}

// ActionableFromAttention reports whether an AttentionState represents
// the "actionable" side of the emission rule (§4.6) as opposed to
// AttentionNone or AttentionInformational.
func ActionableFromAttention(s protocol.AttentionState) bool {
	switch s {
	case protocol.AttentionActionInput, protocol.AttentionActionApproval, protocol.AttentionActionError:
		return true
	default:
		return false
	}
}
