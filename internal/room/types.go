package room

import (
	"time"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/match"
)

// Visibility controls whether a room appears in the public list.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility defaults to public.
func ParseVisibility(v string) Visibility {
	if v == string(VisibilityPrivate) {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// Role is how a member sits in a room.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Member is the identity the registry needs from a session.
type Member struct {
	SessionID string
	Nickname  string
}

type Player struct {
	SessionID    string
	Nickname     string
	JoinedAt     time.Time
	WantsRematch bool
}

type Spectator struct {
	SessionID string
	Nickname  string
	JoinedAt  time.Time
}

// ChatMessage is one entry of a room's chat history.
type ChatMessage struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Summary is the public list projection of a room.
type Summary struct {
	ID          string
	Name        string
	HasPassword bool
	Visibility  Visibility
	Players     int
	Spectators  int
	Status      match.Status
}

type PlayerView struct {
	Nickname     string
	Side         board.Stone
	WantsRematch bool
}

// View is a full, detached snapshot of a room.
type View struct {
	Summary
	CreatedAt  time.Time
	PlayerList []PlayerView
	Watchers   []string
	Board      board.Board
	Moves      []match.Move
	ToMove     board.Stone
	Deadline   time.Time
	Winner     board.Stone
	Reason     match.Reason
	Round      int
	Chat       []ChatMessage
}

// Record is a finished round as handed to persistence.
type Record struct {
	ID       string
	RoomID   string
	RoomName string
	match.Summary
	Chat []ChatMessage
}

// Duration is the wall time between start and end.
func (r Record) Duration() time.Duration {
	d := r.EndedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// WinnerNickname resolves the winning side to a nickname.
func (r Record) WinnerNickname() string {
	switch r.Winner {
	case board.First:
		return r.Black.Nickname
	case board.Second:
		return r.White.Nickname
	default:
		return ""
	}
}

// EventKind names a room transition for the dispatcher.
type EventKind string

const (
	EventSnapshot    EventKind = "room.snapshot"
	EventMoveApplied EventKind = "move.applied"
	EventGameStarted EventKind = "game.started"
	EventGameEnded   EventKind = "game.ended"
	EventTimeout     EventKind = "game.timeout"
	EventChat        EventKind = "chat.message"
	EventListUpsert  EventKind = "rooms.upsert"
	EventListRemove  EventKind = "rooms.remove"
)

// Started describes a new round.
type Started struct {
	Round    int
	Black    string
	White    string
	Deadline time.Time
}

// Ended describes how a round finished. Record is set exactly once per round.
type Ended struct {
	Winner         board.Stone
	WinnerNickname string
	Reason         match.Reason
	Record         *Record
}

// Event is produced under the room lock in transition order. Audience is the
// room's members at emission time; list events have no audience and go to
// every subscriber.
type Event struct {
	Kind     EventKind
	RoomID   string
	Audience []string

	View    *View
	Summary *Summary
	Move    *match.MoveResult
	Timeout *match.TimeoutResult
	Chat    *ChatMessage
	Started *Started
	Ended   *Ended
}

// Publisher receives events while the emitting room is locked, so it must
// not block.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }
