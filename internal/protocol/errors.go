package protocol

// Error is a protocol-level error whose text doubles as the code carried in
// the detail field of a failed CLIENT_RESPONSE.
type Error string

func (e Error) Error() string { return string(e) }

// Code returns the wire code.
func (e Error) Code() string { return string(e) }

// Codes shared by both ends of the connection.
const (
	ErrMalformedMessage  = Error("MALFORMED_MESSAGE")
	ErrInvalidStatus     = Error("INVALID_STATUS")
	ErrNotIdentified     = Error("NOT_IDENTIFIED")
	ErrAlreadyIdentified = Error("ALREADY_IDENTIFIED")
)
