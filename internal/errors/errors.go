package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStopped      = errors.New("stopped")

	// ErrPrivilegeConflict rejects a sanction aimed at a protected chat admin.
	ErrPrivilegeConflict = errors.New("privilege conflict")
	// ErrCorruptedSnapshot marks a persisted chat document that cannot be decoded.
	ErrCorruptedSnapshot = errors.New("corrupted snapshot")
)

// TransientGatewayError reports an outbound action that did not reach the messaging gateway.
// It is never retried by the engine.
type TransientGatewayError struct {
	Action string
	ChatID int64
	UserID int64
	Err    error
}

func (e *TransientGatewayError) Error() string {
	return fmt.Sprintf("gateway %s for chat %d user %d: %v", e.Action, e.ChatID, e.UserID, e.Err)
}

func (e *TransientGatewayError) Unwrap() error {
	return e.Err
}

func NewTransientGatewayError(action string, chatID, userID int64, err error) error {
	return &TransientGatewayError{Action: action, ChatID: chatID, UserID: userID, Err: err}
}

func IsTransientGateway(err error) bool {
	var gwErr *TransientGatewayError
	return errors.As(err, &gwErr)
}
