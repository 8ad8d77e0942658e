package omokdto

import "encoding/json"

// Inbound command types.
const (
	CmdJoin             = "join"
	CmdRegister         = "register"
	CmdRoomCreate       = "room.create"
	CmdRoomJoin         = "room.join"
	CmdRoomLeave        = "room.leave"
	CmdRoomSpectate     = "room.spectate"
	CmdRoomsList        = "rooms.list"
	CmdMove             = "move"
	CmdSpectatorPromote = "spectator.promote"
	CmdRematchVote      = "rematch.vote"
	CmdChatSend         = "chat.send"
)

// Outbound notification types.
const (
	EvtAuthOK         = "auth.ok"
	EvtAuthError      = "auth.error"
	EvtAuthRegistered = "auth.registered"
	EvtRoomSnapshot   = "room.snapshot"
	EvtRoomLeft       = "room.left"
	EvtRoomsList      = "rooms.list"
	EvtMoveApplied    = "move.applied"
	EvtGameStarted    = "game.started"
	EvtGameEnded      = "game.ended"
	EvtGameTimeout    = "game.timeout"
	EvtChatMessage    = "chat.message"
	EvtError          = "error"
)

// Envelope is an inbound frame; Data is decoded per Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func NewMessage(typ string, data any) Message { return Message{Type: typ, Data: data} }
