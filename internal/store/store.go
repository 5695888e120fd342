// Package store persists message records and resolves conversation tokens.
//
// The message table is owned by this service. The conversation_token and
// conversation_reference tables belong to the onboarding flow of a sibling
// service and are only ever read here.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teams-notifier/activity-api/internal/models"
)

// Store provides conversation resolution and message record persistence.
type Store interface {
	// ResolveConversation maps an opaque conversation token to its reference.
	// Returns models.ErrUnknownConversation when the token is absent or expired.
	ResolveConversation(ctx context.Context, token uuid.UUID) (*models.ConversationReference, error)

	// CreateMessage persists a new message record mapping a freshly generated
	// time-ordered message id to the remote activity id. Returns the new id.
	CreateMessage(ctx context.Context, ref *models.ConversationReference, activityID string) (uuid.UUID, error)

	// GetMessage retrieves a record with its conversation reference joined in.
	// Returns models.ErrMessageNotFound when absent, models.ErrMessageDeleted
	// when the record was soft-deleted.
	GetMessage(ctx context.Context, id uuid.UUID) (*models.MessageRecord, error)

	// TouchMessage bumps updated_at on a non-deleted record and returns the
	// new timestamp.
	TouchMessage(ctx context.Context, id uuid.UUID) (time.Time, error)

	// MarkDeleted soft-deletes a record. The mark is a single conditional
	// update so two concurrent deletes cannot both succeed; the loser gets
	// models.ErrMessageDeleted.
	MarkDeleted(ctx context.Context, id uuid.UUID) (time.Time, error)

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
