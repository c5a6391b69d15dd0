// Package protocol defines the Circe wire protocol: the numeric message type
// tags, the presence status enum, the newline-delimited JSON frame codec, and
// the closed set of typed requests and events carried inside frames.
package protocol

import (
	"strconv"
	"strings"
)

// MessageType is the numeric tag identifying a frame. Client-to-server and
// server-to-client tags come from disjoint ranges.
type MessageType int

// Client to server.
const (
	TypeIdentify MessageType = iota + 1
	TypeStatus
	TypeUsers
	TypeText
	TypePublicText
	TypeNewRoom
	TypeInvite
	TypeJoinRoom
	TypeRoomUsers
	TypeRoomText
	TypeLeaveRoom
	TypeDisconnect
)

// Server to client.
const (
	TypeNewUser MessageType = iota + 13
	TypeNewStatus
	TypeUserList
	TypeTextFrom
	TypePublicTextFrom
	TypeJoinedRoom
	TypeRoomUserList
	TypeRoomTextFrom
	TypeLeftRoom
	TypeDisconnected
	TypeClientResponse
	TypeUnknown
	TypeInvitation
)

var typeNames = map[MessageType]string{
	TypeIdentify:       "IDENTIFY",
	TypeStatus:         "STATUS",
	TypeUsers:          "USERS",
	TypeText:           "TEXT",
	TypePublicText:     "PUBLIC_TEXT",
	TypeNewRoom:        "NEW_ROOM",
	TypeInvite:         "INVITE",
	TypeJoinRoom:       "JOIN_ROOM",
	TypeRoomUsers:      "ROOM_USERS",
	TypeRoomText:       "ROOM_TEXT",
	TypeLeaveRoom:      "LEAVE_ROOM",
	TypeDisconnect:     "DISCONNECT",
	TypeNewUser:        "NEW_USER",
	TypeNewStatus:      "NEW_STATUS",
	TypeUserList:       "USER_LIST",
	TypeTextFrom:       "TEXT_FROM",
	TypePublicTextFrom: "PUBLIC_TEXT_FROM",
	TypeJoinedRoom:     "JOINED_ROOM",
	TypeRoomUserList:   "ROOM_USER_LIST",
	TypeRoomTextFrom:   "ROOM_TEXT_FROM",
	TypeLeftRoom:       "LEFT_ROOM",
	TypeDisconnected:   "DISCONNECTED",
	TypeClientResponse: "CLIENT_RESPONSE",
	TypeUnknown:        "UNKNOWN",
	TypeInvitation:     "INVITATION",
}

var typesByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// String returns the wire name of the type.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "TYPE(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is one of the enumerated tags.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// IsRequest reports whether t is a client-to-server tag.
func (t MessageType) IsRequest() bool {
	return t >= TypeIdentify && t <= TypeDisconnect
}

// ParseType resolves a wire name to its tag. Unrecognized names map to
// TypeUnknown.
func ParseType(name string) MessageType {
	if t, ok := typesByName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t
	}
	return TypeUnknown
}

// Status is a user's presence.
type Status string

// Presence values. StatusOffline is also reported for users that have left.
const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusAway      Status = "AWAY"
	StatusOffline   Status = "OFFLINE"
)

// ParseStatus validates a status sent by a client.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusAvailable, StatusBusy, StatusAway, StatusOffline:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

// UserEntry is one element of a USER_LIST or ROOM_USER_LIST payload.
type UserEntry struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
}
