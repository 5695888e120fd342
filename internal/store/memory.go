package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teams-notifier/activity-api/internal/models"
)

// MemoryStore implements Store using in-memory data structures.
// Useful for testing and development.
type MemoryStore struct {
	conversations map[uuid.UUID]*models.ConversationReference // token -> reference
	messages      map[uuid.UUID]*models.MessageRecord
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.ConversationReference),
		messages:      make(map[uuid.UUID]*models.MessageRecord),
	}
}

// AddConversation seeds a resolvable conversation token. Test helper standing
// in for the sibling service's onboarding flow.
func (s *MemoryStore) AddConversation(token uuid.UUID, ref models.ConversationReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[token] = &ref
}

// ResolveConversation maps a token to its reference.
func (s *MemoryStore) ResolveConversation(ctx context.Context, token uuid.UUID) (*models.ConversationReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.conversations[token]
	if !exists {
		return nil, models.ErrUnknownConversation
	}
	refCopy := *ref
	return &refCopy, nil
}

// CreateMessage persists a new message record.
func (s *MemoryStore) CreateMessage(ctx context.Context, ref *models.ConversationReference, activityID string) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[id] = &models.MessageRecord{
		ID:         id,
		ActivityID: activityID,
		Ref:        *ref,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

// GetMessage retrieves a live message record.
func (s *MemoryStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.messages[id]
	if !exists {
		return nil, models.ErrMessageNotFound
	}
	if rec.Deleted() {
		return nil, models.ErrMessageDeleted
	}
	recCopy := *rec
	return &recCopy, nil
}

// TouchMessage bumps updated_at on a live record.
func (s *MemoryStore) TouchMessage(ctx context.Context, id uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.messages[id]
	if !exists {
		return time.Time{}, models.ErrMessageNotFound
	}
	if rec.Deleted() {
		return time.Time{}, models.ErrMessageDeleted
	}
	rec.UpdatedAt = time.Now().UTC()
	return rec.UpdatedAt, nil
}

// MarkDeleted soft-deletes a record; the check and the mark happen under one
// lock, mirroring the conditional update of the SQL implementation.
func (s *MemoryStore) MarkDeleted(ctx context.Context, id uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.messages[id]
	if !exists {
		return time.Time{}, models.ErrMessageNotFound
	}
	if rec.Deleted() {
		return time.Time{}, models.ErrMessageDeleted
	}
	now := time.Now().UTC()
	rec.DeletedAt = &now
	return now, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
