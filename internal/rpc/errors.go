package rpc

import (
	"errors"

	"github.com/mcoot/userdata/internal/model"
)

// ErrInvalidArguments is returned when call arguments do not decode
var ErrInvalidArguments = errors.New("invalid arguments")

// Error codes carried in error frames
const (
	CodeDuplicateEntity   = "DUPLICATE_ENTITY"
	CodeUnknownParent     = "UNKNOWN_PARENT"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeInvalidHandshake  = "INVALID_HANDSHAKE"
	CodeNotAuthenticated  = "NOT_AUTHENTICATED"
	CodeInvalidCapability = "INVALID_CAPABILITY"
	CodeConnectionClosed  = "CONNECTION_CLOSED"
	CodeAuth              = "AUTH"
	CodeThrottled         = "THROTTLED"
	CodeTransient         = "TRANSIENT"
	CodeInvalidArguments  = "INVALID_ARGUMENTS"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeDuplicateEntity, model.ErrDuplicateEntity},
	{CodeUnknownParent, model.ErrUnknownParent},
	{CodeNotFound, model.ErrNotFound},
	{CodeInvalidIdentifier, model.ErrInvalidIdentifier},
	{CodeInvalidToken, model.ErrInvalidToken},
	{CodeInvalidHandshake, model.ErrInvalidHandshake},
	{CodeNotAuthenticated, model.ErrNotAuthenticated},
	{CodeInvalidCapability, model.ErrInvalidCapability},
	{CodeConnectionClosed, model.ErrConnectionClosed},
	{CodeAuth, model.ErrAuth},
	{CodeThrottled, model.ErrThrottled},
	{CodeTransient, model.ErrTransientConnection},
	{CodeInvalidArguments, ErrInvalidArguments},
}

// RemoteError is an error reported by the other side of a connection
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap maps known codes back to their sentinel so errors.Is works across
// the wire
func (e *RemoteError) Unwrap() error {
	for _, c := range codes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}

// CodeOf returns the wire code for err
func CodeOf(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// publicMessage hides the details of internal errors from the other side
func publicMessage(err error) string {
	if CodeOf(err) == CodeInternal {
		return "internal error"
	}
	if errors.Is(err, model.ErrAuth) {
		return model.ErrAuth.Error()
	}
	return err.Error()
}
