package port

import "errors"

// Sentinel errors used across ports.
var (
	// ErrCorpusEmpty is returned when an index build is attempted over an
	// empty corpus. Fatal for the build; the orchestrator parks in Failed.
	ErrCorpusEmpty = errors.New("knowledge corpus is empty")

	// ErrIndexNotReady is returned by retrieval calls before a build
	// completed.
	ErrIndexNotReady = errors.New("embedding index not ready")

	// ErrNotReady is returned by the orchestrator while it is initializing
	// or after a failed build; callers should retry shortly.
	ErrNotReady = errors.New("assistant not ready")

	// ErrAllProvidersExhausted means every generative provider in the
	// fallback chain failed. Recoverable: the composer substitutes a
	// static apology.
	ErrAllProvidersExhausted = errors.New("all generative providers exhausted")

	// ErrInvalidResponse marks a provider answer that failed validation
	// (empty, junk, or an echo of the question).
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrEmptyQuery rejects blank messages before they reach the index.
	ErrEmptyQuery = errors.New("empty query")

	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrChatNotFound = errors.New("chat not found")
)
