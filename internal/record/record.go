package record

import (
	"context"
	"errors"
	"time"

	"github.com/park285/omok-server/internal/room"
)

// Recorder durably appends a finished match.
type Recorder interface {
	Record(ctx context.Context, m MatchRecord) error
}

// Lister returns the most recent matches, newest first.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]MatchRecord, error)
}

type MoveEntry struct {
	Row      int       `json:"row"`
	Col      int       `json:"col"`
	Side     string    `json:"side"`
	Nickname string    `json:"nickname"`
	At       time.Time `json:"at"`
}

// MatchRecord is the persisted shape of a finished round.
type MatchRecord struct {
	ID             string             `json:"id"`
	RoomID         string             `json:"room_id"`
	RoomName       string             `json:"room_name"`
	Round          int                `json:"round"`
	Black          string             `json:"black"`
	White          string             `json:"white"`
	Winner         string             `json:"winner"`
	WinnerNickname string             `json:"winner_nickname,omitempty"`
	Reason         string             `json:"reason"`
	Moves          []MoveEntry        `json:"moves"`
	Chat           []room.ChatMessage `json:"chat"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        time.Time          `json:"ended_at"`
	DurationMS     int64              `json:"duration_ms"`
}

// FromRoom converts a room record for persistence.
func FromRoom(r room.Record) MatchRecord {
	out := MatchRecord{
		ID:             r.ID,
		RoomID:         r.RoomID,
		RoomName:       r.RoomName,
		Round:          r.Round,
		Black:          r.Black.Nickname,
		White:          r.White.Nickname,
		Winner:         "draw",
		WinnerNickname: r.WinnerNickname(),
		Reason:         string(r.Reason),
		Moves:          make([]MoveEntry, 0, len(r.Moves)),
		Chat:           append([]room.ChatMessage{}, r.Chat...),
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		DurationMS:     r.Duration().Milliseconds(),
	}
	if out.WinnerNickname != "" {
		out.Winner = r.Winner.String()
	}
	for _, mv := range r.Moves {
		out.Moves = append(out.Moves, MoveEntry{
			Row:      mv.Row,
			Col:      mv.Col,
			Side:     mv.Side.String(),
			Nickname: mv.Nickname,
			At:       mv.At,
		})
	}
	return out
}

// Fanout writes to every recorder and joins their errors.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, m MatchRecord) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
