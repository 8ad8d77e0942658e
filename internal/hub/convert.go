package hub

import (
	"time"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/match"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/pkg/omokdto"
)

func sideName(s board.Stone) string {
	if s == board.Empty {
		return ""
	}
	return s.String()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toSummary(s room.Summary) omokdto.RoomSummary {
	return omokdto.RoomSummary{
		ID:          s.ID,
		Name:        s.Name,
		HasPassword: s.HasPassword,
		Visibility:  string(s.Visibility),
		Players:     s.Players,
		Spectators:  s.Spectators,
		Status:      string(s.Status),
	}
}

// ToSummaries converts list projections to their wire form.
func ToSummaries(list []room.Summary) []omokdto.RoomSummary {
	out := make([]omokdto.RoomSummary, 0, len(list))
	for _, s := range list {
		out = append(out, toSummary(s))
	}
	return out
}

func toMove(m match.Move) omokdto.MoveInfo {
	return omokdto.MoveInfo{Row: m.Row, Col: m.Col, Side: m.Side.String(), Nickname: m.Nickname, At: m.At}
}

func toChat(roomID string, c room.ChatMessage) omokdto.ChatInfo {
	return omokdto.ChatInfo{ID: c.ID, RoomID: roomID, Nickname: c.Nickname, Text: c.Text, At: c.At}
}

// ToSnapshot converts a room view to its wire form.
func ToSnapshot(v room.View) omokdto.RoomSnapshot {
	out := omokdto.RoomSnapshot{
		RoomSummary: toSummary(v.Summary),
		CreatedAt:   v.CreatedAt,
		PlayerList:  make([]omokdto.PlayerInfo, 0, len(v.PlayerList)),
		Watchers:    append([]string{}, v.Watchers...),
		Board:       v.Board.Rows(),
		Moves:       make([]omokdto.MoveInfo, 0, len(v.Moves)),
		ToMove:      sideName(v.ToMove),
		Deadline:    timePtr(v.Deadline),
		Winner:      sideName(v.Winner),
		Reason:      string(v.Reason),
		Round:       v.Round,
		Chat:        make([]omokdto.ChatInfo, 0, len(v.Chat)),
	}
	for _, p := range v.PlayerList {
		out.PlayerList = append(out.PlayerList, omokdto.PlayerInfo{
			Nickname:     p.Nickname,
			Side:         sideName(p.Side),
			WantsRematch: p.WantsRematch,
		})
	}
	for _, m := range v.Moves {
		out.Moves = append(out.Moves, toMove(m))
	}
	for _, c := range v.Chat {
		out.Chat = append(out.Chat, toChat(v.ID, c))
	}
	return out
}

// frame converts a room event to its outbound message. List events return
// ok=false; they are broadcast separately.
func frame(ev room.Event) (omokdto.Message, bool) {
	switch ev.Kind {
	case room.EventSnapshot:
		if ev.View == nil {
			return omokdto.Message{}, false
		}
		return omokdto.NewMessage(omokdto.EvtRoomSnapshot, ToSnapshot(*ev.View)), true
	case room.EventMoveApplied:
		if ev.Move == nil {
			return omokdto.Message{}, false
		}
		data := omokdto.MoveApplied{RoomID: ev.RoomID, Move: toMove(ev.Move.Move), Ended: ev.Move.Ended}
		if !ev.Move.Ended {
			data.Next = sideName(ev.Move.Next)
			data.Deadline = timePtr(ev.Move.Deadline)
		}
		return omokdto.NewMessage(omokdto.EvtMoveApplied, data), true
	case room.EventGameStarted:
		if ev.Started == nil {
			return omokdto.Message{}, false
		}
		return omokdto.NewMessage(omokdto.EvtGameStarted, omokdto.GameStarted{
			RoomID:   ev.RoomID,
			Round:    ev.Started.Round,
			Black:    ev.Started.Black,
			White:    ev.Started.White,
			Deadline: ev.Started.Deadline,
		}), true
	case room.EventGameEnded:
		if ev.Ended == nil {
			return omokdto.Message{}, false
		}
		data := omokdto.GameEnded{
			RoomID:         ev.RoomID,
			Winner:         "draw",
			WinnerNickname: ev.Ended.WinnerNickname,
			Reason:         string(ev.Ended.Reason),
		}
		if ev.Ended.Winner != board.Empty {
			data.Winner = ev.Ended.Winner.String()
		}
		if ev.Ended.Record != nil {
			data.MatchID = ev.Ended.Record.ID
		}
		return omokdto.NewMessage(omokdto.EvtGameEnded, data), true
	case room.EventTimeout:
		if ev.Timeout == nil {
			return omokdto.Message{}, false
		}
		return omokdto.NewMessage(omokdto.EvtGameTimeout, omokdto.GameTimeout{
			RoomID:   ev.RoomID,
			Nickname: ev.Timeout.Nickname,
			Next:     sideName(ev.Timeout.Next),
			Deadline: ev.Timeout.Deadline,
		}), true
	case room.EventChat:
		if ev.Chat == nil {
			return omokdto.Message{}, false
		}
		return omokdto.NewMessage(omokdto.EvtChatMessage, toChat(ev.RoomID, *ev.Chat)), true
	default:
		return omokdto.Message{}, false
	}
}
