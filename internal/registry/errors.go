package registry

// Error is a registry failure. Its text is the code reported to clients.
type Error string

func (e Error) Error() string { return string(e) }

// Code returns the wire code.
func (e Error) Code() string { return string(e) }

// Registry errors.
const (
	ErrDuplicateUser  = Error("USER_ALREADY_EXISTS")
	ErrUserNotFound   = Error("NO_SUCH_USER")
	ErrDuplicateRoom  = Error("ROOM_ALREADY_EXISTS")
	ErrRoomNotFound   = Error("NO_SUCH_ROOM")
	ErrNotInvited     = Error("NOT_INVITED")
	ErrNotAuthorized  = Error("NOT_AUTHORIZED")
	ErrAlreadyInvited = Error("ALREADY_INVITED")
	ErrAlreadyMember  = Error("ALREADY_MEMBER")
	ErrNotMember      = Error("NOT_JOINED")
	ErrInvalidName    = Error("INVALID_NAME")
)
