package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"orderchain/core/types"
)

const eventHistoryLimit = 4096

// EventUpdate is a committed event tagged with its position in the stream.
type EventUpdate struct {
	Sequence uint64      `json:"sequence"`
	Cursor   string      `json:"cursor"`
	CallHash string      `json:"callHash,omitempty"`
	Event    types.Event `json:"event"`
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if update.Event.Attributes != nil {
		attrs := make(map[string]string, len(update.Event.Attributes))
		for k, v := range update.Event.Attributes {
			attrs[k] = v
		}
		cloned.Event.Attributes = attrs
	}
	return cloned
}

// subscriberBuffer is how many updates a subscriber may fall behind before
// it is dropped.
const subscriberBuffer = 64

type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan EventUpdate
	history []EventUpdate
}

// publish appends evts to the history and fans them out. Sends and closes
// happen under mu so a cancelled subscriber is never written to. A subscriber
// whose buffer is full is closed and must resubscribe from its last cursor.
func (s *eventStream) publish(callHash string, evts []types.Event) {
	if len(evts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := make([]EventUpdate, 0, len(evts))
	for _, evt := range evts {
		s.seq++
		update := EventUpdate{
			Sequence: s.seq,
			Cursor:   strconv.FormatUint(s.seq, 10),
			CallHash: callHash,
			Event:    evt,
		}
		s.history = append(s.history, cloneEventUpdate(update))
		updates = append(updates, update)
	}
	if len(s.history) > eventHistoryLimit {
		excess := len(s.history) - eventHistoryLimit
		trimmed := make([]EventUpdate, eventHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}

	for id, ch := range s.subs {
		for _, update := range updates {
			select {
			case ch <- cloneEventUpdate(update):
				continue
			default:
			}
			delete(s.subs, id)
			close(ch)
			break
		}
	}
}

func (s *eventStream) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// SubscribeEvents registers a subscriber for committed events after the
// supplied cursor. The returned backlog holds retained events the subscriber
// has not seen yet. The channel is closed by cancel, when ctx ends, or when
// the subscriber falls more than 64 updates behind; in the last case the
// caller should resubscribe from the cursor of the last update it handled.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	s := &n.events

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	updates := make(chan EventUpdate, subscriberBuffer)
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan EventUpdate)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]EventUpdate, 0, len(s.history))
	for _, entry := range s.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}
	s.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			s.remove(id)
			close(done)
		})
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return updates, cancel, backlog, nil
}

// ListEvents returns up to limit retained events whose type starts with
// prefix, newest last. A non-positive limit returns everything retained.
func (n *Node) ListEvents(prefix string, limit int) []EventUpdate {
	s := &n.events
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]EventUpdate, 0)
	for _, entry := range s.history {
		if prefix != "" && !strings.HasPrefix(entry.Event.Type, prefix) {
			continue
		}
		matched = append(matched, cloneEventUpdate(entry))
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
