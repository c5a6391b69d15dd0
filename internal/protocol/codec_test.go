package protocol_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/protocol"
)

func TestEncodeTerminatesWithDelimiter(t *testing.T) {
	frame, err := protocol.Encode(protocol.Identify{Username: "alice"}.Message())
	require.NoError(t, err)

	assert.Equal(t, byte(protocol.Delimiter), frame[len(frame)-1])
	assert.Equal(t, 1, bytes.Count(frame, []byte{protocol.Delimiter}))
	assert.JSONEq(t, `{"type":"IDENTIFY","username":"alice"}`, string(frame[:len(frame)-1]))
}

func TestEncodeEscapesDelimiterInsideValues(t *testing.T) {
	body := "line one\nline two\n"
	frame, err := protocol.Encode(protocol.PublicText{Body: body}.Message())
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(frame, []byte{protocol.Delimiter}), "only the terminator may be a raw newline")

	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, body, msg.Get("body"))
}

func TestEncodeRejectsMissingRequiredField(t *testing.T) {
	_, err := protocol.Encode(protocol.NewMessage(protocol.TypeText, "to", "bob"))
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestDecodeAcceptsNameOrNumericTag(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  protocol.MessageType
	}{
		{"wire name", `{"type":"JOIN_ROOM","room":"r1"}`, protocol.TypeJoinRoom},
		{"lower case name", `{"type":"join_room","room":"r1"}`, protocol.TypeJoinRoom},
		{"numeric tag", `{"type":8,"room":"r1"}`, protocol.TypeJoinRoom},
		{"server tag", `{"type":13,"username":"bob"}`, protocol.TypeNewUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}
}

func TestDecodeUnknownTypeIsNotAnError(t *testing.T) {
	for _, frame := range []string{
		`{"type":"FLY_TO_MOON"}`,
		`{"type":999,"anything":"goes"}`,
		`{"type":0}`,
	} {
		msg, err := protocol.Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, protocol.TypeUnknown, msg.Type, frame)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "hello there"},
		{"json array", `["IDENTIFY"]`},
		{"missing type", `{"username":"alice"}`},
		{"bad type value", `{"type":true}`},
		{"missing required field", `{"type":"TEXT","to":"bob"}`},
		{"non string field", `{"type":"IDENTIFY","username":42}`},
		{"null field", `{"type":"IDENTIFY","username":null}`},
		{"list type without users", `{"type":"USER_LIST"}`},
		{"bad users", `{"type":"USER_LIST","users":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, protocol.ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestUserListKeepsOrder(t *testing.T) {
	users := []protocol.UserEntry{
		{Username: "zed", Status: protocol.StatusAway},
		{Username: "amy", Status: protocol.StatusAvailable},
		{Username: "mo", Status: protocol.StatusBusy},
	}
	frame, err := protocol.Encode(protocol.UserList{Users: users}.Message())
	require.NoError(t, err)

	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, users, msg.Users)
}

func TestEmptyUserListEncodesAsArray(t *testing.T) {
	frame, err := protocol.Encode(protocol.RoomUserList{Room: "r1"}.Message())
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"users":[]`)
}

func TestEveryRequestRoundTripsThroughParseRequest(t *testing.T) {
	requests := []protocol.Request{
		protocol.Identify{Username: "alice"},
		protocol.SetStatus{Status: "AWAY"},
		protocol.Users{},
		protocol.Text{To: "bob", Body: "hi"},
		protocol.PublicText{Body: "hello all"},
		protocol.NewRoom{Room: "r1"},
		protocol.Invite{Room: "r1", User: "bob"},
		protocol.JoinRoom{Room: "r1"},
		protocol.RoomUsers{Room: "r1"},
		protocol.RoomText{Room: "r1", Body: "hi room"},
		protocol.LeaveRoom{Room: "r1"},
		protocol.Disconnect{},
	}

	for _, req := range requests {
		t.Run(req.Type().String(), func(t *testing.T) {
			frame, err := protocol.Encode(req.Message())
			require.NoError(t, err)
			msg, err := protocol.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, req, protocol.ParseRequest(msg))
		})
	}
}

func TestParseRequestMapsServerTypesToUnknown(t *testing.T) {
	req := protocol.ParseRequest(protocol.NewUser{Username: "bob"}.Message())
	assert.Equal(t, protocol.Unknown{Tag: protocol.TypeNewUser}, req)
}

func TestParseEventResponse(t *testing.T) {
	resp := protocol.Failed(protocol.KindJoinRoom, fmt.Errorf("join r1: %w", protocol.ErrNotIdentified), "r1")
	frame, err := protocol.Encode(resp.Message())
	require.NoError(t, err)

	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	ev, err := protocol.ParseEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{
		Kind:   protocol.KindJoinRoom,
		Detail: "NOT_IDENTIFIED",
		Target: "r1",
	}, ev)
}

func TestParseEventRejectsBadSuccessFlag(t *testing.T) {
	msg := protocol.NewMessage(protocol.TypeClientResponse, "kind", "IDENTIFY", "success", "maybe", "detail", "x")
	_, err := protocol.ParseEvent(msg)
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestParseEventRejectsRequestTypes(t *testing.T) {
	_, err := protocol.ParseEvent(protocol.Identify{Username: "a"}.Message())
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]protocol.Status{
		"AVAILABLE": protocol.StatusAvailable,
		"busy":      protocol.StatusBusy,
		" Away ":    protocol.StatusAway,
		"offline":   protocol.StatusOffline,
	} {
		got, err := protocol.ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "sleeping", "ONLINE"} {
		_, err := protocol.ParseStatus(in)
		assert.ErrorIs(t, err, protocol.ErrInvalidStatus, in)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, protocol.KindRoomText, protocol.KindOf(protocol.TypeRoomText))
	assert.Equal(t, protocol.KindInvalid, protocol.KindOf(protocol.TypeNewUser))
}

func TestCodeFallsBackToErrorText(t *testing.T) {
	assert.Equal(t, "", protocol.Code(nil))
	assert.Equal(t, "boom", protocol.Code(errors.New("boom")))
	assert.Equal(t, "MALFORMED_MESSAGE", protocol.Code(fmt.Errorf("wrap: %w", protocol.ErrMalformedMessage)))
}
