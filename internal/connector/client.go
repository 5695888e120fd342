// Package connector is a thin authenticated client for the Bot Framework
// Connector REST API (send/update/delete activity).
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teams-notifier/activity-api/internal/cards"
	"github.com/teams-notifier/activity-api/internal/models"
)

// maxErrorBody bounds how much of a rejection body is kept for diagnostics.
const maxErrorBody = 2048

// TokenSource supplies bearer tokens for the Connector audience.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token if it is still the given one.
	Invalidate(token string)
}

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client issues authenticated calls to the Connector REST surface.
type Client struct {
	tokens     TokenSource
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Connector client.
func New(tokens TokenSource, cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		tokens:     tokens,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "connector").Logger(),
	}
}

// RemoteError carries the Connector's rejection status and body.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("connector returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap makes RemoteError match models.ErrRemoteRejected.
func (e *RemoteError) Unwrap() error {
	return models.ErrRemoteRejected
}

// SendActivity posts an activity to the conversation and returns the remote
// activity id.
func (c *Client) SendActivity(ctx context.Context, ref *models.ConversationReference, activity *cards.Activity) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, activitiesURL(ref), activity, &result)
	if err != nil {
		return "", fmt.Errorf("send activity: %w", err)
	}
	return result.ID, nil
}

// UpdateActivity replaces the content of an existing activity.
func (c *Client) UpdateActivity(ctx context.Context, ref *models.ConversationReference, activityID string, activity *cards.Activity) error {
	u := activitiesURL(ref) + "/" + url.PathEscape(activityID)
	if err := c.do(ctx, http.MethodPut, u, activity, nil); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// DeleteActivity removes an activity from the conversation.
func (c *Client) DeleteActivity(ctx context.Context, ref *models.ConversationReference, activityID string) error {
	u := activitiesURL(ref) + "/" + url.PathEscape(activityID)
	if err := c.do(ctx, http.MethodDelete, u, nil, nil); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

func activitiesURL(ref *models.ConversationReference) string {
	return fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimSuffix(ref.ServiceURL, "/"),
		url.PathEscape(ref.ConversationID),
	)
}

// do performs one authenticated request. A single 401 triggers exactly one
// forced token refresh and one retry; a second 401 surfaces as an
// authentication failure.
func (c *Client) do(ctx context.Context, method, u string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode activity: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.attempt(ctx, method, u, body, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		c.logger.Warn().Str("method", method).Msg("connector returned 401, forcing token refresh")
		c.tokens.Invalidate(token)
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		resp, err = c.attempt(ctx, method, u, body, token)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("connector rejected credentials after forced refresh: %w", models.ErrAuthenticationFailed)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(detail)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode connector response: %w", err)
		}
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, u string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build connector request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No internal retry for transport failures; retry policy belongs to
		// the caller.
		return nil, fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	return resp, nil
}
