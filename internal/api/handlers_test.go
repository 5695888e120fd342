package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teams-notifier/activity-api/internal/activity"
	"github.com/teams-notifier/activity-api/internal/cards"
	"github.com/teams-notifier/activity-api/internal/models"
	"github.com/teams-notifier/activity-api/internal/store"
)

// fakeConnector records remote Connector calls.
type fakeConnector struct {
	sends   int
	updates int
	deletes int
	nextID  int
}

func (f *fakeConnector) SendActivity(ctx context.Context, ref *models.ConversationReference, act *cards.Activity) (string, error) {
	f.sends++
	f.nextID++
	return fmt.Sprintf("act-%d", f.nextID), nil
}

func (f *fakeConnector) UpdateActivity(ctx context.Context, ref *models.ConversationReference, activityID string, act *cards.Activity) error {
	f.updates++
	return nil
}

func (f *fakeConnector) DeleteActivity(ctx context.Context, ref *models.ConversationReference, activityID string) error {
	f.deletes++
	return nil
}

func setupTestAPI(t *testing.T) (http.Handler, *store.MemoryStore, *fakeConnector, uuid.UUID) {
	t.Helper()

	st := store.NewMemoryStore()
	token := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	st.AddConversation(token, models.ConversationReference{
		ID:             1,
		TokenID:        10,
		ConversationID: "19:conv@thread.v2",
		ServiceURL:     "https://smba.trafficmanager.net/amer/",
	})

	logger := zerolog.Nop()
	conn := &fakeConnector{}
	manager := activity.New(st, conn, logger)
	handler := NewHandler(manager, st, nil, logger)
	router := NewRouter(handler, logger, RouterConfig{})

	return router, st, conn, token
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMessageID(t *testing.T, w *httptest.ResponseRecorder) uuid.UUID {
	t.Helper()
	var resp struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v: %s", err, w.Body.String())
	}
	return resp.MessageID
}

func TestPostTextMessage(t *testing.T) {
	router, st, conn, token := setupTestAPI(t)

	w := doJSON(t, router, "POST", "/api/v1/message/text", map[string]any{
		"conversation_token": token,
		"text":               "hello",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	id := decodeMessageID(t, w)
	if id.Version() != 7 {
		t.Errorf("expected UUIDv7 message id, got version %d", id.Version())
	}
	if conn.sends != 1 {
		t.Errorf("expected 1 send, got %d", conn.sends)
	}

	// A record maps the id to the remote activity id.
	rec, err := st.GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.ActivityID != "act-1" {
		t.Errorf("unexpected activity id %q", rec.ActivityID)
	}
}

func TestPostMessage_GenericDispatch(t *testing.T) {
	router, _, _, token := setupTestAPI(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"text", map[string]any{"conversation_token": token, "text": "plain"}},
		{"message", map[string]any{"conversation_token": token, "message": map[string]any{"title": "t", "text": "x"}}},
		{"card", map[string]any{"conversation_token": token, "card": map[string]any{"type": "AdaptiveCard"}, "summary": "s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/message", tc.body)
			if w.Code != http.StatusCreated {
				t.Errorf("expected 201, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestPostMessage_OneOfViolation(t *testing.T) {
	router, _, conn, token := setupTestAPI(t)

	bodies := []map[string]any{
		{"conversation_token": token},
		{"conversation_token": token, "text": "x", "card": map[string]any{"type": "AdaptiveCard"}},
		{"conversation_token": token, "text": "x", "message": map[string]any{"text": "y"}},
	}

	for i, body := range bodies {
		w := doJSON(t, router, "POST", "/api/v1/message", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
	if conn.sends != 0 {
		t.Errorf("expected no sends for invalid requests, got %d", conn.sends)
	}
}

func TestPostMessage_InvalidTitleColor(t *testing.T) {
	router, _, conn, token := setupTestAPI(t)

	w := doJSON(t, router, "POST", "/api/v1/message/simple", map[string]any{
		"conversation_token": token,
		"message":            map[string]any{"title": "t", "title_color": "crimson", "text": "x"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var apiErr APIError
	if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("failed to unmarshal error: %v", err)
	}
	if apiErr.Code != ErrCodeValidation {
		t.Errorf("expected %s, got %s", ErrCodeValidation, apiErr.Code)
	}
	if conn.sends != 0 {
		t.Errorf("expected no network call, got %d sends", conn.sends)
	}
}

func TestPostMessage_UnknownToken(t *testing.T) {
	router, _, conn, _ := setupTestAPI(t)

	w := doJSON(t, router, "POST", "/api/v1/message/text", map[string]any{
		"conversation_token": uuid.New(),
		"text":               "hello",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var apiErr APIError
	json.Unmarshal(w.Body.Bytes(), &apiErr)
	if apiErr.Code != ErrCodeUnknownConversation {
		t.Errorf("expected %s, got %s", ErrCodeUnknownConversation, apiErr.Code)
	}
	if conn.sends != 0 {
		t.Errorf("expected no Connector call before resolution, got %d", conn.sends)
	}
}

func TestPatchMessage(t *testing.T) {
	router, _, conn, token := setupTestAPI(t)

	created := doJSON(t, router, "POST", "/api/v1/message/text", map[string]any{
		"conversation_token": token,
		"text":               "hello",
	})
	id := decodeMessageID(t, created)

	w := doJSON(t, router, "PATCH", "/api/v1/message", map[string]any{
		"message_id": id,
		"text":       "hello v2",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		MessageID uuid.UUID `json:"message_id"`
		UpdatedAt string    `json:"updated_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.MessageID != id {
		t.Errorf("expected same message id, got %s", resp.MessageID)
	}
	if resp.UpdatedAt == "" {
		t.Error("expected updated_at in response")
	}
	if conn.updates != 1 || conn.sends != 1 {
		t.Errorf("expected 1 send and 1 update, got %d/%d", conn.sends, conn.updates)
	}
}

func TestPatchMessage_Unknown(t *testing.T) {
	router, _, conn, _ := setupTestAPI(t)

	w := doJSON(t, router, "PATCH", "/api/v1/message", map[string]any{
		"message_id": uuid.New(),
		"text":       "v2",
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if conn.updates != 0 {
		t.Errorf("expected no remote call, got %d", conn.updates)
	}
}

func TestDeleteMessage_Lifecycle(t *testing.T) {
	router, _, conn, token := setupTestAPI(t)

	created := doJSON(t, router, "POST", "/api/v1/message/text", map[string]any{
		"conversation_token": token,
		"text":               "bye",
	})
	id := decodeMessageID(t, created)

	w := doJSON(t, router, "DELETE", "/api/v1/message", map[string]any{"message_id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		DeletedAt string `json:"deleted_at"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.DeletedAt == "" {
		t.Error("expected deleted_at in response")
	}
	if conn.deletes != 1 {
		t.Errorf("expected 1 remote delete, got %d", conn.deletes)
	}

	// Second delete: the message is gone.
	w = doJSON(t, router, "DELETE", "/api/v1/message", map[string]any{"message_id": id})
	if w.Code != http.StatusGone {
		t.Errorf("expected 410 on double delete, got %d: %s", w.Code, w.Body.String())
	}
	if conn.deletes != 1 {
		t.Errorf("expected no second remote delete, got %d", conn.deletes)
	}

	// Update after delete fails the same way.
	w = doJSON(t, router, "PATCH", "/api/v1/message", map[string]any{"message_id": id, "text": "zombie"})
	if w.Code != http.StatusGone {
		t.Errorf("expected 410 on update after delete, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteMessage_Unknown(t *testing.T) {
	router, _, conn, _ := setupTestAPI(t)

	w := doJSON(t, router, "DELETE", "/api/v1/message", map[string]any{"message_id": uuid.New()})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if conn.deletes != 0 {
		t.Errorf("expected no Connector call for unknown id, got %d", conn.deletes)
	}
}

func TestHealthz(t *testing.T) {
	router, _, _, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp["ok"] {
		t.Error("expected ok=true")
	}
}

func TestInvalidJSONBody(t *testing.T) {
	router, _, _, _ := setupTestAPI(t)

	req := httptest.NewRequest("POST", "/api/v1/message", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var apiErr APIError
	json.Unmarshal(w.Body.Bytes(), &apiErr)
	if apiErr.Code != ErrCodeInvalidJSON {
		t.Errorf("expected %s, got %s", ErrCodeInvalidJSON, apiErr.Code)
	}
}
