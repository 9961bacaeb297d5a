// Package memory provides an in-memory implementation of storage.TurnStore
// for testing and lightweight deployments. Turns are stored in memory and
// lost when the process restarts. Optional eviction limits the number of
// conversations kept.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/tkralik/turnstile/pkg/storage"
)

// conversationKey scopes turn history by user and conversation.
type conversationKey struct {
	userID         string
	conversationID string
}

type conversation struct {
	turns   []*storage.TurnRecord
	lruElem *list.Element
}

// Store is an in-memory TurnStore with optional LRU eviction of whole
// conversations.
type Store struct {
	mu            sync.RWMutex
	conversations map[conversationKey]*conversation
	lruList       *list.List // front = most recently written
	maxSize       int        // 0 = unlimited
}

var _ storage.TurnStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0 the store grows
// without limit; otherwise the least recently written conversation is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		conversations: make(map[conversationKey]*conversation),
		lruList:       list.New(),
		maxSize:       maxSize,
	}
}

// WriteTurnSummary appends the record to the conversation's history.
func (s *Store) WriteTurnSummary(ctx context.Context, rec *storage.TurnRecord) error {
	key := conversationKey{userID: rec.UserID, conversationID: rec.ConversationID}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[key]
	if !exists {
		if s.maxSize > 0 && len(s.conversations) >= s.maxSize {
			s.evictOldest()
		}
		conv = &conversation{lruElem: s.lruList.PushFront(key)}
		s.conversations[key] = conv
	} else {
		s.lruList.MoveToFront(conv.lruElem)
	}

	conv.turns = append(conv.turns, rec)
	return nil
}

// ConversationExists reports whether the user has turns recorded under
// the conversation.
func (s *Store) ConversationExists(ctx context.Context, userID, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.conversations[conversationKey{userID: userID, conversationID: conversationID}]
	return ok, nil
}

// Turns returns the conversation's recorded turns in write order.
func (s *Store) Turns(ctx context.Context, userID, conversationID string) ([]*storage.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationKey{userID: userID, conversationID: conversationID}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	out := make([]*storage.TurnRecord, len(conv.turns))
	copy(out, conv.turns)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// evictOldest removes the least recently written conversation.
// Caller must hold the write lock.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(conversationKey)
	s.lruList.Remove(back)
	delete(s.conversations, key)
}
