package uplink

import "errors"

// Domain errors for upstream submission.
var (
	// ErrStorage wraps staging store failures. It aborts the rest of a pass.
	ErrStorage = errors.New("uplink: storage failure")

	// ErrAuth is returned when no credential could be obtained. Every
	// remaining batch of the pass is marked retry without posting.
	ErrAuth = errors.New("uplink: credential unavailable")

	// ErrTransport wraps network failures and unreadable responses.
	ErrTransport = errors.New("uplink: submission transport failure")

	// ErrRejected is returned when the API refuses a batch for a reason
	// other than a duplicate conflict.
	ErrRejected = errors.New("uplink: submission rejected")

	// ErrDuplicateUnresolved is returned when duplicate conflicts persist
	// past the retry bound. The rows need operator attention.
	ErrDuplicateUnresolved = errors.New("uplink: duplicate conflict unresolved")

	// ErrInactive is returned by Trigger when the uplink is switched off.
	ErrInactive = errors.New("uplink: module inactive")

	// ErrTriggerPending is returned by Trigger when a manual pass is already queued.
	ErrTriggerPending = errors.New("uplink: manual pass already queued")
)
