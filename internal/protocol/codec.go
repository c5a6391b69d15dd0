package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Delimiter terminates every encoded frame. JSON string escaping keeps it out
// of field values.
const Delimiter = '\n'

// usersKey holds the ordered user list of USER_LIST and ROOM_USER_LIST.
const usersKey = "users"

// Message is a decoded frame: a type tag, flat string fields, and for the two
// list types an ordered user list.
type Message struct {
	Type   MessageType
	Fields map[string]string
	Users  []UserEntry
}

// NewMessage builds a message from alternating key/value pairs. A trailing
// key without a value is ignored.
func NewMessage(t MessageType, kv ...string) Message {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return Message{Type: t, Fields: fields}
}

// Get returns a field value, or "" when absent.
func (m Message) Get(key string) string {
	return m.Fields[key]
}

var requiredFields = map[MessageType][]string{
	TypeIdentify:       {"username"},
	TypeStatus:         {"status"},
	TypeUsers:          nil,
	TypeText:           {"to", "body"},
	TypePublicText:     {"body"},
	TypeNewRoom:        {"room"},
	TypeInvite:         {"room", "user"},
	TypeJoinRoom:       {"room"},
	TypeRoomUsers:      {"room"},
	TypeRoomText:       {"room", "body"},
	TypeLeaveRoom:      {"room"},
	TypeDisconnect:     nil,
	TypeNewUser:        {"username"},
	TypeNewStatus:      {"username", "status"},
	TypeUserList:       nil,
	TypeTextFrom:       {"from", "body"},
	TypePublicTextFrom: {"from", "body"},
	TypeJoinedRoom:     {"room", "username"},
	TypeRoomUserList:   {"room"},
	TypeRoomTextFrom:   {"room", "from", "body"},
	TypeLeftRoom:       {"room", "username"},
	TypeDisconnected:   {"username"},
	TypeClientResponse: {"kind", "success", "detail"},
	TypeUnknown:        nil,
	TypeInvitation:     {"room", "from"},
}

func hasUserList(t MessageType) bool {
	return t == TypeUserList || t == TypeRoomUserList
}

// RequiredFields returns the documented field set of a message type.
func RequiredFields(t MessageType) []string {
	return append([]string(nil), requiredFields[t]...)
}

func validate(m Message, hasUsers bool) error {
	for _, key := range requiredFields[m.Type] {
		if _, ok := m.Fields[key]; !ok {
			return fmt.Errorf("%w: %s requires field %q", ErrMalformedMessage, m.Type, key)
		}
	}
	if hasUserList(m.Type) && !hasUsers {
		return fmt.Errorf("%w: %s requires field %q", ErrMalformedMessage, m.Type, usersKey)
	}
	return nil
}

// Encode serializes m into a single delimited frame. It fails with
// ErrMalformedMessage if a required field is missing.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Known() {
		return nil, fmt.Errorf("%w: cannot encode %s", ErrMalformedMessage, m.Type)
	}
	if err := validate(m, true); err != nil {
		return nil, err
	}

	obj := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		if k == "type" || k == usersKey {
			continue
		}
		obj[k] = v
	}
	obj["type"] = m.Type.String()
	if hasUserList(m.Type) {
		users := m.Users
		if users == nil {
			users = []UserEntry{}
		}
		obj[usersKey] = users
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return append(data, Delimiter), nil
}

// Decode parses one frame. Unrecognized type names or tags yield a message of
// TypeUnknown rather than an error so the caller can answer instead of
// dropping the connection.
func Decode(frame []byte) (Message, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	rawType, ok := raw["type"]
	if !ok {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	t, err := decodeType(rawType)
	if err != nil {
		return Message{}, err
	}
	if t == TypeUnknown {
		return Message{Type: TypeUnknown, Fields: map[string]string{}}, nil
	}

	m := Message{Type: t, Fields: make(map[string]string, len(raw))}
	_, hasUsers := raw[usersKey]
	for key, value := range raw {
		switch key {
		case "type":
			continue
		case usersKey:
			if err := json.Unmarshal(value, &m.Users); err != nil {
				return Message{}, fmt.Errorf("%w: users: %v", ErrMalformedMessage, err)
			}
		default:
			var s string
			if err := json.Unmarshal(value, &s); err != nil || bytes.Equal(value, []byte("null")) {
				return Message{}, fmt.Errorf("%w: field %q is not a string", ErrMalformedMessage, key)
			}
			m.Fields[key] = s
		}
	}

	if err := validate(m, hasUsers); err != nil {
		return Message{}, err
	}
	return m, nil
}

func decodeType(raw json.RawMessage) (MessageType, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return ParseType(name), nil
	}
	var tag int
	if err := json.Unmarshal(raw, &tag); err == nil {
		if t := MessageType(tag); t.Known() {
			return t, nil
		}
		return TypeUnknown, nil
	}
	return 0, fmt.Errorf("%w: type must be a name or a numeric tag", ErrMalformedMessage)
}
