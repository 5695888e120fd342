// Package api provides the REST API handlers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teams-notifier/activity-api/internal/activity"
	"github.com/teams-notifier/activity-api/internal/cards"
	"github.com/teams-notifier/activity-api/internal/metrics"
	"github.com/teams-notifier/activity-api/internal/store"
)

// timestampLayout matches the RFC 3339-with-a-space form callers have always
// received, e.g. "2024-11-14 07:20:31.320543+00:00".
const timestampLayout = "2006-01-02 15:04:05.999999-07:00"

// Handler handles API requests.
type Handler struct {
	manager *activity.Manager
	store   store.Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHandler creates a new API handler. Metrics may be nil.
func NewHandler(manager *activity.Manager, st store.Store, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		store:   st,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Request types

// messageRequest is the generic request body: a conversation token or message
// id, plus exactly one payload variant. Structural dispatch happens here, at
// the boundary; the core only ever sees the tagged union.
type messageRequest struct {
	ConversationToken *uuid.UUID         `json:"conversation_token,omitempty"`
	MessageID         *uuid.UUID         `json:"message_id,omitempty"`
	Message           *cards.TextMessage `json:"message,omitempty"`
	Text              *string            `json:"text,omitempty"`
	Card              map[string]any     `json:"card,omitempty"`
	Summary           string             `json:"summary,omitempty"`
}

// payload picks the single populated variant.
func (r *messageRequest) payload() (cards.Payload, *APIError) {
	populated := 0
	if r.Message != nil {
		populated++
	}
	if r.Text != nil {
		populated++
	}
	if r.Card != nil {
		populated++
	}
	if populated != 1 {
		return cards.Payload{}, NewValidationError("one and only one of message, text, or card must be provided")
	}

	switch {
	case r.Card != nil:
		return cards.Payload{Kind: cards.KindCard, Card: r.Card, Summary: r.Summary}, nil
	case r.Message != nil:
		return cards.Payload{Kind: cards.KindMessage, Message: r.Message}, nil
	default:
		return cards.Payload{Kind: cards.KindText, Text: *r.Text}, nil
	}
}

// Response types

type messageIDResponse struct {
	MessageID uuid.UUID `json:"message_id"`
}

type messagePatchResponse struct {
	MessageID uuid.UUID `json:"message_id"`
	UpdatedAt string    `json:"updated_at"`
}

type messageDeleteResponse struct {
	MessageID uuid.UUID `json:"message_id"`
	DeletedAt string    `json:"deleted_at"`
}

// Message handlers

// PostMessage handles POST /api/v1/message: sends a text, simple or card
// message to the token's conversation.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.ConversationToken == nil {
		h.WriteAPIError(w, NewValidationError("conversation_token is required"))
		return
	}
	payload, apiErr := req.payload()
	if apiErr != nil {
		h.WriteAPIError(w, apiErr)
		return
	}

	h.create(w, r, *req.ConversationToken, payload)
}

// PostTextMessage handles POST /api/v1/message/text.
func (h *Handler) PostTextMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationToken *uuid.UUID `json:"conversation_token"`
		Text              string     `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.ConversationToken == nil {
		h.WriteAPIError(w, NewValidationError("conversation_token is required"))
		return
	}

	h.create(w, r, *req.ConversationToken, cards.Payload{Kind: cards.KindText, Text: req.Text})
}

// PostSimpleMessage handles POST /api/v1/message/simple.
func (h *Handler) PostSimpleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationToken *uuid.UUID         `json:"conversation_token"`
		Message           *cards.TextMessage `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.ConversationToken == nil {
		h.WriteAPIError(w, NewValidationError("conversation_token is required"))
		return
	}
	if req.Message == nil {
		h.WriteAPIError(w, NewValidationError("message is required"))
		return
	}

	h.create(w, r, *req.ConversationToken, cards.Payload{Kind: cards.KindMessage, Message: req.Message})
}

// PostCardMessage handles POST /api/v1/message/card.
func (h *Handler) PostCardMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationToken *uuid.UUID     `json:"conversation_token"`
		Card              map[string]any `json:"card"`
		Summary           string         `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.ConversationToken == nil {
		h.WriteAPIError(w, NewValidationError("conversation_token is required"))
		return
	}

	h.create(w, r, *req.ConversationToken, cards.Payload{Kind: cards.KindCard, Card: req.Card, Summary: req.Summary})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, token uuid.UUID, payload cards.Payload) {
	result, err := h.manager.Create(r.Context(), token, payload)
	if h.metrics != nil {
		h.metrics.ObserveActivity("create", err)
	}
	if h.HandleError(w, err, "create message") {
		return
	}

	h.logger.Info().Stringer("message_id", result.MessageID).Msg("message created")
	h.writeJSON(w, http.StatusCreated, messageIDResponse{MessageID: result.MessageID})
}

// PatchMessage handles PATCH /api/v1/message: updates the activity behind an
// existing message id.
func (h *Handler) PatchMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.MessageID == nil {
		h.WriteAPIError(w, NewValidationError("message_id is required"))
		return
	}
	payload, apiErr := req.payload()
	if apiErr != nil {
		h.WriteAPIError(w, apiErr)
		return
	}

	result, err := h.manager.Update(r.Context(), *req.MessageID, payload)
	if h.metrics != nil {
		h.metrics.ObserveActivity("update", err)
	}
	if h.HandleError(w, err, "update message") {
		return
	}

	h.writeJSON(w, http.StatusOK, messagePatchResponse{
		MessageID: result.MessageID,
		UpdatedAt: result.UpdatedAt.Format(timestampLayout),
	})
}

// DeleteMessage handles DELETE /api/v1/message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID *uuid.UUID `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteAPIError(w, ErrInvalidJSON)
		return
	}
	if req.MessageID == nil {
		h.WriteAPIError(w, NewValidationError("message_id is required"))
		return
	}

	result, err := h.manager.Delete(r.Context(), *req.MessageID)
	if h.metrics != nil {
		h.metrics.ObserveActivity("delete", err)
	}
	if h.HandleError(w, err, "delete message") {
		return
	}

	h.writeJSON(w, http.StatusOK, messageDeleteResponse{
		MessageID: result.MessageID,
		DeletedAt: result.DeletedAt.Format(timestampLayout),
	})
}

// Healthz handles GET /healthz, verifying database connectivity.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Helper methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
