package server

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/Tyrowin/circe/internal/protocol"
	"github.com/Tyrowin/circe/internal/registry"
)

// targetError attaches the subject of a failed operation, reported in the
// response's target field.
type targetError struct {
	err    error
	target string
}

func (e *targetError) Error() string { return e.err.Error() }
func (e *targetError) Unwrap() error { return e.err }

func withTarget(err error, target string) error {
	if err == nil {
		return nil
	}
	return &targetError{err: err, target: target}
}

func targetOf(err error) string {
	var te *targetError
	if errors.As(err, &te) {
		return te.target
	}
	return ""
}

// dispatch runs one request and reports whether the session should keep
// reading. A handler error becomes a failed CLIENT_RESPONSE to the sender; a
// handler panic is logged and ends this session only.
func (s *Session) dispatch(req protocol.Request) bool {
	h := &handler{sess: s, srv: s.srv}

	var (
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { err = h.handle(req) })
	if r := pc.Recovered(); r != nil {
		s.srv.metrics.panics.Inc()
		s.logger().WithField("type", req.Type().String()).
			WithError(r.AsError()).
			Error("Recovered from panic in request handler")
		return false
	}

	if err != nil {
		s.srv.metrics.handlerError(err)
		s.logger().WithFields(logrus.Fields{
			"type":  req.Type().String(),
			"class": ErrorClass(err),
		}).WithError(err).Debug("Request failed")
		s.reply(protocol.Failed(protocol.KindOf(req.Type()), err, targetOf(err)))
	}
	return !h.hangup
}

// handler answers the requests of one session. Every request gets exactly one
// direct reply: a list for USERS and ROOM_USERS, UNKNOWN for unrecognized
// types, and a CLIENT_RESPONSE otherwise.
type handler struct {
	sess   *Session
	srv    *Server
	hangup bool
}

var _ protocol.RequestHandler = (*handler)(nil)

func (h *handler) handle(req protocol.Request) error {
	if h.sess.Username() == "" {
		switch req.(type) {
		case protocol.Identify, protocol.Disconnect, protocol.Unknown:
		default:
			return protocol.ErrNotIdentified
		}
	}
	return req.Accept(h)
}

func (h *handler) me() string { return h.sess.Username() }

func (h *handler) Identify(r protocol.Identify) error {
	if current := h.me(); current != "" {
		return withTarget(protocol.ErrAlreadyIdentified, current)
	}
	name, err := registry.NormalizeUsername(r.Username)
	if err != nil {
		return withTarget(err, r.Username)
	}
	if err := h.srv.users.Add(name, protocol.StatusAvailable, h.sess); err != nil {
		return withTarget(err, name)
	}
	h.sess.setUsername(name)
	h.sess.logger().Info("User identified")

	h.sess.reply(protocol.Succeeded(protocol.KindIdentify, name))
	h.srv.users.BroadcastExcept(name, protocol.NewUser{Username: name}.Message())
	return nil
}

func (h *handler) SetStatus(r protocol.SetStatus) error {
	status, err := protocol.ParseStatus(r.Status)
	if err != nil {
		return withTarget(err, r.Status)
	}
	me := h.me()
	if err := h.srv.users.SetStatus(me, status); err != nil {
		return err
	}
	h.sess.reply(protocol.Succeeded(protocol.KindStatus, string(status)))
	h.srv.users.BroadcastExcept(me, protocol.NewStatus{Username: me, Status: status}.Message())
	return nil
}

func (h *handler) Users(protocol.Users) error {
	h.sess.reply(protocol.UserList{Users: h.srv.users.List()})
	return nil
}

// Text forwards a private message. Delivery to a live but unreachable
// recipient is best effort: the failure is logged and the sender still gets
// a success response.
func (h *handler) Text(r protocol.Text) error {
	to, err := registry.NormalizeUsername(r.To)
	if err != nil {
		return withTarget(registry.ErrUserNotFound, r.To)
	}
	err = h.srv.users.SendTo(to, protocol.TextFrom{From: h.me(), Body: r.Body}.Message())
	if errors.Is(err, registry.ErrUserNotFound) {
		return withTarget(err, to)
	}
	h.sess.reply(protocol.Succeeded(protocol.KindText, to))
	return nil
}

func (h *handler) PublicText(r protocol.PublicText) error {
	me := h.me()
	h.srv.users.BroadcastExcept(me, protocol.PublicTextFrom{From: me, Body: r.Body}.Message())
	h.sess.reply(protocol.Succeeded(protocol.KindPublicText, me))
	return nil
}

func (h *handler) NewRoom(r protocol.NewRoom) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	if err := h.srv.rooms.Create(room, h.me()); err != nil {
		return withTarget(err, room)
	}
	h.sess.logger().WithField("room", room).Info("Room created")
	h.sess.reply(protocol.Succeeded(protocol.KindNewRoom, room))
	return nil
}

// Invite records the invitation, acknowledges it, and notifies the invitee.
func (h *handler) Invite(r protocol.Invite) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	invitee, err := registry.NormalizeUsername(r.User)
	if err != nil {
		return withTarget(registry.ErrUserNotFound, r.User)
	}
	me := h.me()
	if err := h.srv.rooms.Invite(room, me, invitee); err != nil {
		return withTarget(err, room)
	}

	h.sess.reply(protocol.Response{Kind: protocol.KindInvite, Success: true, Detail: invitee, Target: room})
	h.notify(invitee, protocol.Invitation{Room: room, From: me}.Message())
	return nil
}

// notify sends a follow-up notice that is not part of the reply. A recipient
// that has already left is logged at Debug; delivery failures are logged by
// the registry.
func (h *handler) notify(username string, msg protocol.Message) {
	if err := h.srv.users.SendTo(username, msg); errors.Is(err, registry.ErrUserNotFound) {
		h.sess.logger().WithFields(logrus.Fields{
			"recipient": username,
			"type":      msg.Type.String(),
		}).Debug("Notice dropped, recipient is gone")
	}
}

// JoinRoom admits the sender. Existing members get JOINED_ROOM from the
// registry; the sender gets the ack followed by the member list.
func (h *handler) JoinRoom(r protocol.JoinRoom) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	if _, err := h.srv.rooms.Join(room, h.me()); err != nil {
		return withTarget(err, room)
	}
	h.sess.reply(protocol.Succeeded(protocol.KindJoinRoom, room))
	if entries, err := h.srv.rooms.MemberEntries(room); err == nil {
		h.sess.reply(protocol.RoomUserList{Room: room, Users: entries})
	}
	return nil
}

func (h *handler) RoomUsers(r protocol.RoomUsers) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	if err := h.srv.rooms.CheckMember(room, h.me()); err != nil {
		return withTarget(err, room)
	}
	entries, err := h.srv.rooms.MemberEntries(room)
	if err != nil {
		return withTarget(err, room)
	}
	h.sess.reply(protocol.RoomUserList{Room: room, Users: entries})
	return nil
}

func (h *handler) RoomText(r protocol.RoomText) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	me := h.me()
	if err := h.srv.rooms.CheckMember(room, me); err != nil {
		return withTarget(err, room)
	}
	msg := protocol.RoomTextFrom{Room: room, From: me, Body: r.Body}.Message()
	if _, err := h.srv.rooms.Broadcast(room, msg, me); err != nil {
		return withTarget(err, room)
	}
	h.sess.reply(protocol.Succeeded(protocol.KindRoomText, room))
	return nil
}

func (h *handler) LeaveRoom(r protocol.LeaveRoom) error {
	room, err := registry.NormalizeRoomName(r.Room)
	if err != nil {
		return withTarget(err, r.Room)
	}
	destroyed, err := h.srv.rooms.Leave(room, h.me())
	if err != nil {
		return withTarget(err, room)
	}
	h.sess.logger().WithFields(logrus.Fields{"room": room, "destroyed": destroyed}).Debug("Left room")
	h.sess.reply(protocol.Succeeded(protocol.KindLeaveRoom, room))
	return nil
}

// Disconnect acknowledges and stops the reader; the teardown follows.
func (h *handler) Disconnect(protocol.Disconnect) error {
	h.sess.reply(protocol.Succeeded(protocol.KindDisconnect, h.me()))
	h.hangup = true
	return nil
}

func (h *handler) Unknown(r protocol.Unknown) error {
	h.sess.logger().WithField("type", r.Tag.String()).Debug("Unknown message type")
	h.sess.reply(protocol.UnknownReply{})
	return nil
}
