package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationReference identifies where and to whom activities are sent.
// References are created by the onboarding flow of a sibling service and are
// read-only here; a resolved reference never changes for a given token.
type ConversationReference struct {
	// ID is the conversation_reference row id.
	ID int64 `json:"-"`
	// TokenID is the conversation_token row id the reference was resolved through.
	TokenID int64 `json:"-"`
	// ConversationID is the Teams conversation id activities are addressed to.
	ConversationID string `json:"conversation_id"`
	// ServiceURL is the Bot Framework regional endpoint for this conversation.
	ServiceURL string `json:"service_url"`
	// BotID is the bot's channel account id.
	BotID string `json:"bot_id,omitempty"`
	// UserID is the recipient's channel account id.
	UserID string `json:"user_id,omitempty"`
	// TenantID is the recipient's Entra tenant.
	TenantID string `json:"tenant_id,omitempty"`
}

// MessageRecord maps an internally issued message id to the remote
// conversation/activity pair so later updates and deletes can target the
// correct remote resource.
type MessageRecord struct {
	// ID is the time-ordered (UUIDv7) message id returned to callers.
	ID uuid.UUID `json:"message_id"`
	// ActivityID is the Bot Framework activity id returned by the Connector.
	ActivityID string `json:"activity_id"`
	// Ref is the conversation reference the message was sent through.
	Ref ConversationReference `json:"ref"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message has been soft-deleted.
func (m *MessageRecord) Deleted() bool {
	return m.DeletedAt != nil
}
