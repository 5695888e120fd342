// Package models defines the core data structures for the activity API.
package models

import "errors"

// Common errors.
var (
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrUnknownConversation  = errors.New("unknown conversation token")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMessageDeleted       = errors.New("message already deleted")
	ErrAuthenticationFailed = errors.New("authentication with identity provider failed")
	ErrRemoteRejected       = errors.New("connector rejected the request")
	ErrNetwork              = errors.New("network failure reaching connector")
	ErrStorage              = errors.New("storage operation failed")
)
