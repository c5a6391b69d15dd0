package protocol

// Request is a decoded client-to-server message. The set of implementations
// is closed: Accept routes each variant to its own RequestHandler method, so
// adding a variant does not compile until every handler covers it.
type Request interface {
	Type() MessageType
	Message() Message
	Accept(h RequestHandler) error
}

// RequestHandler has one method per client-to-server message type.
type RequestHandler interface {
	Identify(Identify) error
	SetStatus(SetStatus) error
	Users(Users) error
	Text(Text) error
	PublicText(PublicText) error
	NewRoom(NewRoom) error
	Invite(Invite) error
	JoinRoom(JoinRoom) error
	RoomUsers(RoomUsers) error
	RoomText(RoomText) error
	LeaveRoom(LeaveRoom) error
	Disconnect(Disconnect) error
	Unknown(Unknown) error
}

// Identify claims a username for the connection.
type Identify struct{ Username string }

// SetStatus changes the sender's presence.
type SetStatus struct{ Status string }

// Users asks for the full user list.
type Users struct{}

// Text is a private message.
type Text struct{ To, Body string }

// PublicText is delivered to every other user.
type PublicText struct{ Body string }

// NewRoom creates a room owned by the sender.
type NewRoom struct{ Room string }

// Invite lets User join Room.
type Invite struct{ Room, User string }

// JoinRoom enters a room the sender was invited to.
type JoinRoom struct{ Room string }

// RoomUsers asks for a room's member list.
type RoomUsers struct{ Room string }

// RoomText is delivered to every other member of Room.
type RoomText struct{ Room, Body string }

// LeaveRoom exits Room.
type LeaveRoom struct{ Room string }

// Disconnect ends the session.
type Disconnect struct{}

// Unknown stands for any frame whose tag is not a client-to-server type.
type Unknown struct{ Tag MessageType }

func (Identify) Type() MessageType   { return TypeIdentify }
func (SetStatus) Type() MessageType  { return TypeStatus }
func (Users) Type() MessageType      { return TypeUsers }
func (Text) Type() MessageType       { return TypeText }
func (PublicText) Type() MessageType { return TypePublicText }
func (NewRoom) Type() MessageType    { return TypeNewRoom }
func (Invite) Type() MessageType     { return TypeInvite }
func (JoinRoom) Type() MessageType   { return TypeJoinRoom }
func (RoomUsers) Type() MessageType  { return TypeRoomUsers }
func (RoomText) Type() MessageType   { return TypeRoomText }
func (LeaveRoom) Type() MessageType  { return TypeLeaveRoom }
func (Disconnect) Type() MessageType { return TypeDisconnect }
func (Unknown) Type() MessageType    { return TypeUnknown }

func (r Identify) Message() Message  { return NewMessage(TypeIdentify, "username", r.Username) }
func (r SetStatus) Message() Message { return NewMessage(TypeStatus, "status", r.Status) }
func (Users) Message() Message       { return NewMessage(TypeUsers) }
func (r Text) Message() Message      { return NewMessage(TypeText, "to", r.To, "body", r.Body) }
func (r PublicText) Message() Message {
	return NewMessage(TypePublicText, "body", r.Body)
}
func (r NewRoom) Message() Message { return NewMessage(TypeNewRoom, "room", r.Room) }
func (r Invite) Message() Message  { return NewMessage(TypeInvite, "room", r.Room, "user", r.User) }
func (r JoinRoom) Message() Message {
	return NewMessage(TypeJoinRoom, "room", r.Room)
}
func (r RoomUsers) Message() Message {
	return NewMessage(TypeRoomUsers, "room", r.Room)
}
func (r RoomText) Message() Message {
	return NewMessage(TypeRoomText, "room", r.Room, "body", r.Body)
}
func (r LeaveRoom) Message() Message {
	return NewMessage(TypeLeaveRoom, "room", r.Room)
}
func (Disconnect) Message() Message { return NewMessage(TypeDisconnect) }
func (Unknown) Message() Message    { return NewMessage(TypeUnknown) }

func (r Identify) Accept(h RequestHandler) error   { return h.Identify(r) }
func (r SetStatus) Accept(h RequestHandler) error  { return h.SetStatus(r) }
func (r Users) Accept(h RequestHandler) error      { return h.Users(r) }
func (r Text) Accept(h RequestHandler) error       { return h.Text(r) }
func (r PublicText) Accept(h RequestHandler) error { return h.PublicText(r) }
func (r NewRoom) Accept(h RequestHandler) error    { return h.NewRoom(r) }
func (r Invite) Accept(h RequestHandler) error     { return h.Invite(r) }
func (r JoinRoom) Accept(h RequestHandler) error   { return h.JoinRoom(r) }
func (r RoomUsers) Accept(h RequestHandler) error  { return h.RoomUsers(r) }
func (r RoomText) Accept(h RequestHandler) error   { return h.RoomText(r) }
func (r LeaveRoom) Accept(h RequestHandler) error  { return h.LeaveRoom(r) }
func (r Disconnect) Accept(h RequestHandler) error { return h.Disconnect(r) }
func (r Unknown) Accept(h RequestHandler) error    { return h.Unknown(r) }

// ParseRequest converts a decoded message into its typed request. Server to
// client tags and TypeUnknown become Unknown. The message is expected to have
// passed Decode, which already enforced the required fields.
func ParseRequest(m Message) Request {
	switch m.Type {
	case TypeIdentify:
		return Identify{Username: m.Get("username")}
	case TypeStatus:
		return SetStatus{Status: m.Get("status")}
	case TypeUsers:
		return Users{}
	case TypeText:
		return Text{To: m.Get("to"), Body: m.Get("body")}
	case TypePublicText:
		return PublicText{Body: m.Get("body")}
	case TypeNewRoom:
		return NewRoom{Room: m.Get("room")}
	case TypeInvite:
		return Invite{Room: m.Get("room"), User: m.Get("user")}
	case TypeJoinRoom:
		return JoinRoom{Room: m.Get("room")}
	case TypeRoomUsers:
		return RoomUsers{Room: m.Get("room")}
	case TypeRoomText:
		return RoomText{Room: m.Get("room"), Body: m.Get("body")}
	case TypeLeaveRoom:
		return LeaveRoom{Room: m.Get("room")}
	case TypeDisconnect:
		return Disconnect{}
	default:
		return Unknown{Tag: m.Type}
	}
}
