package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Event is a decoded server-to-client message. Like Request, the set is
// closed and each variant dispatches to its own EventHandler method.
type Event interface {
	Type() MessageType
	Message() Message
	Accept(h EventHandler)
}

// EventHandler has one method per server-to-client message type.
type EventHandler interface {
	NewUser(NewUser)
	NewStatus(NewStatus)
	UserList(UserList)
	TextFrom(TextFrom)
	PublicTextFrom(PublicTextFrom)
	Invitation(Invitation)
	JoinedRoom(JoinedRoom)
	RoomUserList(RoomUserList)
	RoomTextFrom(RoomTextFrom)
	LeftRoom(LeftRoom)
	Disconnected(Disconnected)
	Response(Response)
	UnknownReply(UnknownReply)
}

// NewUser announces a newly identified user.
type NewUser struct{ Username string }

// NewStatus announces a presence change.
type NewStatus struct {
	Username string
	Status   Status
}

// UserList answers USERS, in identification order.
type UserList struct{ Users []UserEntry }

// TextFrom carries a private message.
type TextFrom struct{ From, Body string }

// PublicTextFrom carries a public message.
type PublicTextFrom struct{ From, Body string }

// Invitation tells the invitee that From invited them into Room.
type Invitation struct{ Room, From string }

// JoinedRoom announces a new room member.
type JoinedRoom struct{ Room, Username string }

// RoomUserList answers ROOM_USERS, in join order.
type RoomUserList struct {
	Room  string
	Users []UserEntry
}

// RoomTextFrom carries a room message.
type RoomTextFrom struct{ Room, From, Body string }

// LeftRoom announces that a member left Room.
type LeftRoom struct{ Room, Username string }

// Disconnected announces that a user left the server.
type Disconnected struct{ Username string }

// UnknownReply answers a frame with an unrecognized type.
type UnknownReply struct{}

// ResponseKind names the operation a CLIENT_RESPONSE answers.
type ResponseKind string

// One kind per request type, plus KindInvalid for frames that failed to
// decode.
const (
	KindIdentify   ResponseKind = "IDENTIFY"
	KindStatus     ResponseKind = "STATUS"
	KindUsers      ResponseKind = "USERS"
	KindText       ResponseKind = "TEXT"
	KindPublicText ResponseKind = "PUBLIC_TEXT"
	KindNewRoom    ResponseKind = "NEW_ROOM"
	KindInvite     ResponseKind = "INVITE"
	KindJoinRoom   ResponseKind = "JOIN_ROOM"
	KindRoomUsers  ResponseKind = "ROOM_USERS"
	KindRoomText   ResponseKind = "ROOM_TEXT"
	KindLeaveRoom  ResponseKind = "LEAVE_ROOM"
	KindDisconnect ResponseKind = "DISCONNECT"
	KindInvalid    ResponseKind = "INVALID"
)

// KindOf returns the response kind answering a request type.
func KindOf(t MessageType) ResponseKind {
	if !t.IsRequest() {
		return KindInvalid
	}
	return ResponseKind(t.String())
}

// Response acknowledges or rejects one operation. On failure Detail holds an
// error code; on success it names the subject of the operation.
type Response struct {
	Kind    ResponseKind
	Success bool
	Detail  string
	Target  string
}

// Succeeded builds a success response.
func Succeeded(kind ResponseKind, detail string) Response {
	return Response{Kind: kind, Success: true, Detail: detail}
}

// Failed builds a failure response carrying err's code.
func Failed(kind ResponseKind, err error, target string) Response {
	return Response{Kind: kind, Detail: Code(err), Target: target}
}

// Code extracts the wire code from an error chain, falling back to the
// error text.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return err.Error()
}

func (NewUser) Type() MessageType        { return TypeNewUser }
func (NewStatus) Type() MessageType      { return TypeNewStatus }
func (UserList) Type() MessageType       { return TypeUserList }
func (TextFrom) Type() MessageType       { return TypeTextFrom }
func (PublicTextFrom) Type() MessageType { return TypePublicTextFrom }
func (Invitation) Type() MessageType     { return TypeInvitation }
func (JoinedRoom) Type() MessageType     { return TypeJoinedRoom }
func (RoomUserList) Type() MessageType   { return TypeRoomUserList }
func (RoomTextFrom) Type() MessageType   { return TypeRoomTextFrom }
func (LeftRoom) Type() MessageType       { return TypeLeftRoom }
func (Disconnected) Type() MessageType   { return TypeDisconnected }
func (Response) Type() MessageType       { return TypeClientResponse }
func (UnknownReply) Type() MessageType   { return TypeUnknown }

func (e NewUser) Message() Message { return NewMessage(TypeNewUser, "username", e.Username) }
func (e NewStatus) Message() Message {
	return NewMessage(TypeNewStatus, "username", e.Username, "status", string(e.Status))
}
func (e UserList) Message() Message {
	m := NewMessage(TypeUserList)
	m.Users = e.Users
	return m
}
func (e TextFrom) Message() Message {
	return NewMessage(TypeTextFrom, "from", e.From, "body", e.Body)
}
func (e PublicTextFrom) Message() Message {
	return NewMessage(TypePublicTextFrom, "from", e.From, "body", e.Body)
}
func (e Invitation) Message() Message {
	return NewMessage(TypeInvitation, "room", e.Room, "from", e.From)
}
func (e JoinedRoom) Message() Message {
	return NewMessage(TypeJoinedRoom, "room", e.Room, "username", e.Username)
}
func (e RoomUserList) Message() Message {
	m := NewMessage(TypeRoomUserList, "room", e.Room)
	m.Users = e.Users
	return m
}
func (e RoomTextFrom) Message() Message {
	return NewMessage(TypeRoomTextFrom, "room", e.Room, "from", e.From, "body", e.Body)
}
func (e LeftRoom) Message() Message {
	return NewMessage(TypeLeftRoom, "room", e.Room, "username", e.Username)
}
func (e Disconnected) Message() Message {
	return NewMessage(TypeDisconnected, "username", e.Username)
}
func (e Response) Message() Message {
	m := NewMessage(TypeClientResponse,
		"kind", string(e.Kind),
		"success", strconv.FormatBool(e.Success),
		"detail", e.Detail)
	if e.Target != "" {
		m.Fields["target"] = e.Target
	}
	return m
}
func (UnknownReply) Message() Message { return NewMessage(TypeUnknown) }

func (e NewUser) Accept(h EventHandler)        { h.NewUser(e) }
func (e NewStatus) Accept(h EventHandler)      { h.NewStatus(e) }
func (e UserList) Accept(h EventHandler)       { h.UserList(e) }
func (e TextFrom) Accept(h EventHandler)       { h.TextFrom(e) }
func (e PublicTextFrom) Accept(h EventHandler) { h.PublicTextFrom(e) }
func (e Invitation) Accept(h EventHandler)     { h.Invitation(e) }
func (e JoinedRoom) Accept(h EventHandler)     { h.JoinedRoom(e) }
func (e RoomUserList) Accept(h EventHandler)   { h.RoomUserList(e) }
func (e RoomTextFrom) Accept(h EventHandler)   { h.RoomTextFrom(e) }
func (e LeftRoom) Accept(h EventHandler)       { h.LeftRoom(e) }
func (e Disconnected) Accept(h EventHandler)   { h.Disconnected(e) }
func (e Response) Accept(h EventHandler)       { h.Response(e) }
func (e UnknownReply) Accept(h EventHandler)   { h.UnknownReply(e) }

// ParseEvent converts a decoded message into its typed event. Client to
// server tags are malformed in this direction.
func ParseEvent(m Message) (Event, error) {
	switch m.Type {
	case TypeNewUser:
		return NewUser{Username: m.Get("username")}, nil
	case TypeNewStatus:
		return NewStatus{Username: m.Get("username"), Status: Status(m.Get("status"))}, nil
	case TypeUserList:
		return UserList{Users: m.Users}, nil
	case TypeTextFrom:
		return TextFrom{From: m.Get("from"), Body: m.Get("body")}, nil
	case TypePublicTextFrom:
		return PublicTextFrom{From: m.Get("from"), Body: m.Get("body")}, nil
	case TypeInvitation:
		return Invitation{Room: m.Get("room"), From: m.Get("from")}, nil
	case TypeJoinedRoom:
		return JoinedRoom{Room: m.Get("room"), Username: m.Get("username")}, nil
	case TypeRoomUserList:
		return RoomUserList{Room: m.Get("room"), Users: m.Users}, nil
	case TypeRoomTextFrom:
		return RoomTextFrom{Room: m.Get("room"), From: m.Get("from"), Body: m.Get("body")}, nil
	case TypeLeftRoom:
		return LeftRoom{Room: m.Get("room"), Username: m.Get("username")}, nil
	case TypeDisconnected:
		return Disconnected{Username: m.Get("username")}, nil
	case TypeClientResponse:
		ok, err := strconv.ParseBool(m.Get("success"))
		if err != nil {
			return nil, fmt.Errorf("%w: success must be a boolean", ErrMalformedMessage)
		}
		return Response{
			Kind:    ResponseKind(m.Get("kind")),
			Success: ok,
			Detail:  m.Get("detail"),
			Target:  m.Get("target"),
		}, nil
	case TypeUnknown:
		return UnknownReply{}, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a server message", ErrMalformedMessage, m.Type)
	}
}
