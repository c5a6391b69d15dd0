package server

import (
	"errors"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/registry"
	"github.com/Tyrowin/circe/internal/transport"
)

// Session errors.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("send queue full")
	ErrServerClosed  = errors.New("server closed")
)

// Error classes, used as metric labels.
const (
	ClassProtocol      = "protocol"
	ClassAuthorization = "authorization"
	ClassConflict      = "conflict"
	ClassNotFound      = "not_found"
	ClassTransport     = "transport"
	ClassInternal      = "internal"
)

// ErrorClass maps an error onto the failure taxonomy: malformed input,
// permission problems, name collisions, missing entities, connection
// failures, and everything else.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, protocol.ErrMalformedMessage),
		errors.Is(err, protocol.ErrInvalidStatus),
		errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, transport.ErrFrameTooLarge):
		return ClassProtocol
	case errors.Is(err, protocol.ErrNotIdentified),
		errors.Is(err, registry.ErrNotAuthorized),
		errors.Is(err, registry.ErrNotInvited),
		errors.Is(err, registry.ErrNotMember):
		return ClassAuthorization
	case errors.Is(err, registry.ErrDuplicateUser),
		errors.Is(err, registry.ErrDuplicateRoom),
		errors.Is(err, registry.ErrAlreadyInvited),
		errors.Is(err, registry.ErrAlreadyMember),
		errors.Is(err, protocol.ErrAlreadyIdentified):
		return ClassConflict
	case errors.Is(err, registry.ErrUserNotFound),
		errors.Is(err, registry.ErrRoomNotFound):
		return ClassNotFound
	case errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrSendQueueFull),
		transport.IsClosed(err):
		return ClassTransport
	default:
		return ClassInternal
	}
}
