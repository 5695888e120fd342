// Package activity orchestrates the lifecycle of outbound Teams messages:
// create, update and delete, tying together payload translation, conversation
// resolution, the Connector client and message record persistence.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teams-notifier/activity-api/internal/cards"
	"github.com/teams-notifier/activity-api/internal/models"
	"github.com/teams-notifier/activity-api/internal/store"
)

// Connector issues the remote activity calls.
type Connector interface {
	SendActivity(ctx context.Context, ref *models.ConversationReference, activity *cards.Activity) (string, error)
	UpdateActivity(ctx context.Context, ref *models.ConversationReference, activityID string, activity *cards.Activity) error
	DeleteActivity(ctx context.Context, ref *models.ConversationReference, activityID string) error
}

// Manager drives the per-message state machine: Created -> Updated* -> Deleted.
type Manager struct {
	store     store.Store
	connector Connector
	logger    zerolog.Logger
}

// New creates a Manager.
func New(st store.Store, conn Connector, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     st,
		connector: conn,
		logger:    logger.With().Str("component", "activity").Logger(),
	}
}

// CreateResult is the outcome of a successful Create.
type CreateResult struct {
	MessageID uuid.UUID `json:"message_id"`
}

// UpdateResult is the outcome of a successful Update.
type UpdateResult struct {
	MessageID uuid.UUID `json:"message_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeleteResult is the outcome of a successful Delete.
type DeleteResult struct {
	MessageID uuid.UUID `json:"message_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Create sends a new activity to the token's conversation and persists the
// message id mapping. Validation and resolution failures abort before any
// Connector call; no record is written when the send fails.
func (m *Manager) Create(ctx context.Context, token uuid.UUID, payload cards.Payload) (*CreateResult, error) {
	act, err := cards.Translate(payload)
	if err != nil {
		return nil, err
	}

	ref, err := m.store.ResolveConversation(ctx, token)
	if err != nil {
		return nil, err
	}

	activityID, err := m.connector.SendActivity(ctx, ref, act)
	if err != nil {
		return nil, err
	}

	id, err := m.store.CreateMessage(ctx, ref, activityID)
	if err != nil {
		// The remote message exists but has no retrievable local id. Logged
		// distinctly so operators can reconcile manually.
		m.logger.Error().
			Err(err).
			Str("conversation_id", ref.ConversationID).
			Str("activity_id", activityID).
			Msg("activity sent but record not persisted, remote message is orphaned")
		return nil, fmt.Errorf("persist message record: %w", err)
	}

	m.logger.Debug().
		Stringer("message_id", id).
		Str("activity_id", activityID).
		Msg("activity created")

	return &CreateResult{MessageID: id}, nil
}

// Update pushes a new payload to the remote activity behind an existing,
// non-deleted message id. The record keeps its remote activity id; only its
// updated_at advances.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, payload cards.Payload) (*UpdateResult, error) {
	act, err := cards.Translate(payload)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.connector.UpdateActivity(ctx, &rec.Ref, rec.ActivityID, act); err != nil {
		return nil, err
	}

	updatedAt, err := m.store.TouchMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("record update timestamp: %w", err)
	}

	return &UpdateResult{MessageID: id, UpdatedAt: updatedAt}, nil
}

// Delete removes the remote activity, then retires the record. The local mark
// happens only after the remote delete succeeds so a failed remote delete can
// be retried.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	rec, err := m.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.connector.DeleteActivity(ctx, &rec.Ref, rec.ActivityID); err != nil {
		return nil, err
	}

	deletedAt, err := m.store.MarkDeleted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark message deleted: %w", err)
	}

	m.logger.Debug().
		Stringer("message_id", id).
		Str("activity_id", rec.ActivityID).
		Msg("activity deleted")

	return &DeleteResult{MessageID: id, DeletedAt: deletedAt}, nil
}
