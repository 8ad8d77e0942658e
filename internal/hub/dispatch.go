package hub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/gameerr"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/internal/session"
	"github.com/park285/omok-server/pkg/omokdto"
)

const registerTimeout = 5 * time.Second

// Handle executes one inbound command. A rejected command produces exactly
// one error frame to the sender and no room broadcast.
func (h *Hub) Handle(sessionID string, env omokdto.Envelope) {
	sess, ok := h.dir.Lookup(sessionID)
	if !ok {
		return
	}

	switch env.Type {
	case omokdto.CmdJoin:
		h.handleJoin(sess, env.Data)
		return
	case omokdto.CmdRegister:
		h.handleRegister(sess, env.Data)
		return
	}

	if !sess.Authenticated() {
		if isKnownCommand(env.Type) {
			h.reject(sessionID, gameerr.ErrNotAuthorized)
		} else {
			h.rejectUnknown(sessionID, env.Type)
		}
		return
	}

	var err error
	switch env.Type {
	case omokdto.CmdRoomsList:
		h.sendRoomsList(sessionID)
	case omokdto.CmdRoomCreate:
		err = h.handleCreate(sess, env.Data)
	case omokdto.CmdRoomJoin:
		err = h.handleRoomJoin(sess, env.Data)
	case omokdto.CmdRoomLeave:
		err = h.handleLeave(sess)
	case omokdto.CmdRoomSpectate:
		_, err = h.rooms.Spectate(sessionID)
	case omokdto.CmdSpectatorPromote:
		_, err = h.rooms.Promote(sessionID)
	case omokdto.CmdRematchVote:
		_, err = h.rooms.VoteRematch(sessionID)
	case omokdto.CmdMove:
		err = h.handleMove(sess, env.Data)
	case omokdto.CmdChatSend:
		var req omokdto.ChatRequest
		if err = decode(env.Data, &req); err == nil {
			_, err = h.rooms.Chat(sessionID, req.Text)
		}
	default:
		h.rejectUnknown(sessionID, env.Type)
		return
	}
	if err != nil {
		h.reject(sessionID, err)
	}
}

func isKnownCommand(t string) bool {
	switch t {
	case omokdto.CmdJoin, omokdto.CmdRegister, omokdto.CmdRoomCreate, omokdto.CmdRoomJoin,
		omokdto.CmdRoomLeave, omokdto.CmdRoomSpectate, omokdto.CmdRoomsList, omokdto.CmdMove,
		omokdto.CmdSpectatorPromote, omokdto.CmdRematchVote, omokdto.CmdChatSend:
		return true
	}
	return false
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return gameerr.ErrMalformed.With("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return gameerr.ErrMalformed.With("%v", err)
	}
	return nil
}

func (h *Hub) handleJoin(sess session.Session, raw json.RawMessage) {
	var req omokdto.JoinRequest
	if err := decode(raw, &req); err != nil {
		h.authError(sess.ID, err)
		return
	}
	if sess.Authenticated() {
		h.authError(sess.ID, gameerr.ErrAlreadyJoined)
		return
	}

	nickname := strings.TrimSpace(req.Nickname)
	registered := false
	switch {
	case req.Password != "":
		canonical, err := h.accounts.Verify(nickname, req.Password)
		if err != nil {
			h.authError(sess.ID, err)
			return
		}
		nickname, registered = canonical, true
	case h.accounts.Reserved(nickname):
		h.authError(sess.ID, gameerr.ErrNicknameTaken)
		return
	case h.requireAccounts:
		h.authError(sess.ID, gameerr.ErrAccountRequired)
		return
	}

	joined, err := h.dir.Join(sess.ID, nickname)
	if err != nil {
		h.authError(sess.ID, err)
		return
	}
	h.logger.Info("session_joined",
		zap.String("session", sess.ID),
		zap.String("nickname", joined.Nickname),
		zap.Bool("registered", registered),
	)
	h.send(sess.ID, omokdto.NewMessage(omokdto.EvtAuthOK, omokdto.AuthOK{
		SessionID:  sess.ID,
		Nickname:   joined.Nickname,
		Registered: registered,
		Message:    h.msgs.Text("notice.welcome", map[string]any{"Nickname": joined.Nickname}, ""),
		Rooms:      ToSummaries(h.rooms.List(true)),
	}))
}

func (h *Hub) handleRegister(sess session.Session, raw json.RawMessage) {
	var req omokdto.RegisterRequest
	if err := decode(raw, &req); err != nil {
		h.authError(sess.ID, err)
		return
	}
	if sess.Authenticated() {
		h.authError(sess.ID, gameerr.ErrAlreadyJoined)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()
	acct, err := h.accounts.Register(ctx, req.Nickname, req.Password)
	if err != nil {
		h.authError(sess.ID, err)
		return
	}
	h.send(sess.ID, omokdto.NewMessage(omokdto.EvtAuthRegistered, omokdto.AuthRegistered{
		Nickname: acct.Nickname,
		Message:  h.msgs.Text("notice.registered", map[string]any{"Nickname": acct.Nickname}, "registered"),
	}))
}

func (h *Hub) handleCreate(sess session.Session, raw json.RawMessage) error {
	var req omokdto.CreateRoomRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = h.msgs.Text("room.default_name", map[string]any{"Nickname": sess.Nickname}, sess.Nickname+"'s room")
	}
	v, err := h.rooms.Open(member(sess), name, req.Password, room.ParseVisibility(req.Visibility))
	if err != nil {
		return err
	}
	h.dir.SetRoom(sess.ID, v.ID)
	return nil
}

func (h *Hub) handleRoomJoin(sess session.Session, raw json.RawMessage) error {
	var req omokdto.JoinRoomRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	_, v, err := h.rooms.Join(member(sess), req.RoomID, req.Password)
	if err != nil {
		return err
	}
	h.dir.SetRoom(sess.ID, v.ID)
	return nil
}

func (h *Hub) handleLeave(sess session.Session) error {
	roomID, ok := h.rooms.RoomOf(sess.ID)
	if !ok || !h.rooms.Leave(sess.ID) {
		return gameerr.ErrNotInRoom
	}
	h.dir.SetRoom(sess.ID, "")
	h.send(sess.ID, omokdto.NewMessage(omokdto.EvtRoomLeft, omokdto.RoomLeft{RoomID: roomID}))
	return nil
}

func (h *Hub) handleMove(sess session.Session, raw json.RawMessage) error {
	var req omokdto.MoveRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	if req.Row == nil || req.Col == nil {
		return gameerr.ErrMalformed.With("row and col are required")
	}
	_, err := h.rooms.Move(sess.ID, *req.Row, *req.Col)
	return err
}

func (h *Hub) sendRoomsList(sessionID string) {
	h.send(sessionID, omokdto.NewMessage(omokdto.EvtRoomsList, omokdto.RoomsList{
		Full:  true,
		Rooms: ToSummaries(h.rooms.List(true)),
	}))
}

func member(s session.Session) room.Member {
	return room.Member{SessionID: s.ID, Nickname: s.Nickname}
}

// toDomainError maps err to its wire form. Errors outside the taxonomy are
// logged and reported as internal.
func (h *Hub) toDomainError(err error, data map[string]any) omokdto.DomainError {
	ge := gameerr.As(err)
	if ge == nil {
		h.logger.Error("command_failed", zap.Error(err))
		return omokdto.DomainError{Code: "internal", Message: h.msgs.ErrorText("internal", nil), Retryable: true}
	}
	return omokdto.DomainError{
		Code:      ge.Code,
		Message:   h.msgs.ErrorText(ge.Code, data),
		Retryable: retryable(ge),
	}
}

func retryable(e *gameerr.Error) bool {
	if e.Kind == gameerr.KindPersistence {
		return true
	}
	switch e.Code {
	case gameerr.ErrNotYourTurn.Code, gameerr.ErrRoomFull.Code, gameerr.ErrNotPlaying.Code:
		return true
	}
	return false
}

func (h *Hub) reject(sessionID string, err error) {
	de := h.toDomainError(err, nil)
	h.logger.Debug("command_rejected", zap.String("session", sessionID), zap.String("code", de.Code), zap.Error(err))
	h.send(sessionID, omokdto.NewMessage(omokdto.EvtError, de))
}

func (h *Hub) rejectUnknown(sessionID, typ string) {
	de := h.toDomainError(gameerr.ErrUnknownCommand, map[string]any{"Type": typ})
	h.send(sessionID, omokdto.NewMessage(omokdto.EvtError, de))
}

func (h *Hub) authError(sessionID string, err error) {
	h.send(sessionID, omokdto.NewMessage(omokdto.EvtAuthError, h.toDomainError(err, nil)))
}

// HandleFrame decodes a raw text frame and executes it. Undecodable frames
// are answered with malformed_command.
func (h *Hub) HandleFrame(sessionID string, data []byte) {
	var env omokdto.Envelope
	if err := json.Unmarshal(data, &env); err != nil || strings.TrimSpace(env.Type) == "" {
		if _, ok := h.dir.Lookup(sessionID); ok {
			h.reject(sessionID, gameerr.ErrMalformed)
		}
		return
	}
	h.Handle(sessionID, env)
}
