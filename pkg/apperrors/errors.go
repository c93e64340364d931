// Package apperrors holds the error taxonomy shared by the store, the
// services and the HTTP gateway.
package apperrors

import (
	"errors"
	"fmt"
)

// ClientError reports missing or malformed caller input. It is always
// raised before any store call is made.
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string { return e.Msg }

// ClientErrorf formats a ClientError.
func ClientErrorf(format string, args ...any) error {
	return &ClientError{Msg: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err carries a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

var (
	// ErrStoreUnavailable wraps every failure returned by a store backend.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownCollection is returned when a collection name is refused.
	ErrUnknownCollection = errors.New("unknown collection")

	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidState is returned when an order is no longer pending.
	ErrInvalidState = errors.New("order is not pending")

	ErrInsufficientStock = errors.New("insufficient stock")
)

// Unavailable wraps a backend error so callers can match ErrStoreUnavailable
// while keeping the original cause in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
