package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Engine error taxonomy. Conflict is absorbed internally wherever a safe
// re-read or no-op interpretation exists; everything else propagates to the
// handler layer for status mapping.
var (
	// ErrNotFound: invite code absent/expired, session or couple absent
	ErrNotFound = errors.New("not found")

	// ErrConflict: lost a race — code already redeemed, session already
	// created by the other side, transition already applied. Recoverable
	// by re-reading, not a user-facing failure unless no re-read applies.
	ErrConflict = errors.New("conflict")

	// ErrInvalidOperation: self-join attempt, overwriting an answer with a
	// different value, malformed input
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnavailable: transient gateway/channel failure, retryable
	ErrUnavailable = errors.New("unavailable")

	// ErrResourceExhausted: bounded retries exhausted (invite generation)
	ErrResourceExhausted = errors.New("resource exhausted")
)

// StatusForError maps engine errors to HTTP statuses for the route layer.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidOperation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrResourceExhausted):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
