package dispatch

import "errors"

var (
	// ErrNotFound is returned when the campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrInvalidState is returned when the campaign is not draft or scheduled,
	// including when another run claimed it first.
	ErrInvalidState = errors.New("campaign is not in a dispatchable state")
	// ErrEmptyAudience is returned when the campaign has no pending recipients.
	ErrEmptyAudience = errors.New("campaign has no pending recipients")
	// ErrNoContent is returned when neither the template nor the campaign
	// provides a body.
	ErrNoContent = errors.New("campaign has no content")
	// ErrTransportUnavailable wraps failures to build or verify the delivery
	// transport. The run is aborted and the campaign marked failed.
	ErrTransportUnavailable = errors.New("delivery transport unavailable")
	// ErrCancelled is returned when the run context ended before every
	// pending recipient was processed. It wraps the context's cause.
	ErrCancelled = errors.New("dispatch cancelled")
	// ErrInvalidTestSend is returned when a test send lacks a recipient
	// address or content.
	ErrInvalidTestSend = errors.New("invalid test send")
	// ErrRecipientNotFound is returned when a preview names an unknown
	// recipient.
	ErrRecipientNotFound = errors.New("recipient not found")
)
