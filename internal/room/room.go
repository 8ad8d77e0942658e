package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/match"
)

// MaxPlayers is the seat count of every room.
const MaxPlayers = 2

// Room owns its roster, match and chat. All fields are guarded by mu.
type Room struct {
	mu sync.Mutex

	id         string
	name       string
	password   string
	visibility Visibility
	createdAt  time.Time
	creator    string

	players    []*Player
	spectators []*Spectator

	game    *match.Match
	chat    []ChatMessage
	deleted bool
}

func (r *Room) ID() string { return r.id }

func (r *Room) empty() bool { return len(r.players) == 0 && len(r.spectators) == 0 }

func (r *Room) playerIndex(sessionID string) int {
	for i, p := range r.players {
		if p.SessionID == sessionID {
			return i
		}
	}
	return -1
}

func (r *Room) spectatorIndex(sessionID string) int {
	for i, s := range r.spectators {
		if s.SessionID == sessionID {
			return i
		}
	}
	return -1
}

func (r *Room) audience() []string {
	out := make([]string, 0, len(r.players)+len(r.spectators))
	for _, p := range r.players {
		out = append(out, p.SessionID)
	}
	for _, s := range r.spectators {
		out = append(out, s.SessionID)
	}
	return out
}

func (r *Room) summary() Summary {
	return Summary{
		ID:          r.id,
		Name:        r.name,
		HasPassword: r.password != "",
		Visibility:  r.visibility,
		Players:     len(r.players),
		Spectators:  len(r.spectators),
		Status:      r.game.Status(),
	}
}

func (r *Room) view() View {
	v := View{
		Summary:   r.summary(),
		CreatedAt: r.createdAt,
		Board:     r.game.Board(),
		Moves:     r.game.Moves(),
		ToMove:    r.game.ToMove(),
		Deadline:  r.game.Deadline(),
		Winner:    r.game.Winner(),
		Reason:    r.game.Reason(),
		Round:     r.game.Round(),
	}
	for _, p := range r.players {
		v.PlayerList = append(v.PlayerList, PlayerView{
			Nickname:     p.Nickname,
			Side:         r.game.SideOf(p.SessionID),
			WantsRematch: p.WantsRematch,
		})
	}
	for _, s := range r.spectators {
		v.Watchers = append(v.Watchers, s.Nickname)
	}
	v.Chat = append([]ChatMessage(nil), r.chat...)
	return v
}

func (r *Room) clearVotes() {
	for _, p := range r.players {
		p.WantsRematch = false
	}
}

// seat adds m as a player and starts a round when both seats are filled.
func (r *Room) seat(m Member, now time.Time, coin func() bool, emit func(Event)) {
	r.players = append(r.players, &Player{SessionID: m.SessionID, Nickname: m.Nickname, JoinedAt: now})
	r.clearVotes()
	if len(r.players) == MaxPlayers && r.game.Status() != match.StatusPlaying {
		r.start(now, coin, emit)
	}
}

func (r *Room) start(now time.Time, coin func() bool, emit func(Event)) {
	a := match.Participant{SessionID: r.players[0].SessionID, Nickname: r.players[0].Nickname}
	b := match.Participant{SessionID: r.players[1].SessionID, Nickname: r.players[1].Nickname}
	r.game.Start(a, b, coin(), now)
	r.clearVotes()
	emit(Event{
		Kind: EventGameStarted,
		Started: &Started{
			Round:    r.game.Round(),
			Black:    r.game.Seat(board.First).Nickname,
			White:    r.game.Seat(board.Second).Nickname,
			Deadline: r.game.Deadline(),
		},
	})
}

// unseat removes a player, aborting a live round first. The match returns
// to waiting once the roster is short and no round is being reported.
func (r *Room) unseat(idx int, now time.Time, emit func(Event)) *Player {
	p := r.players[idx]
	if r.game.Status() == match.StatusPlaying {
		if winner, ok := r.game.Abort(p.SessionID, now); ok {
			r.emitEnded(winner, emit)
		}
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	r.clearVotes()
	switch r.game.Status() {
	case match.StatusEnded:
		r.game.Reset()
	case match.StatusAborted:
		if len(r.players) == 0 {
			r.game.Reset()
		}
	}
	return p
}

func (r *Room) emitEnded(winner board.Stone, emit func(Event)) {
	ended := &Ended{
		Winner:         winner,
		WinnerNickname: r.game.Seat(winner).Nickname,
		Reason:         r.game.Reason(),
	}
	if s, ok := r.game.TakeSummary(); ok {
		ended.Record = &Record{
			ID:       uuid.NewString(),
			RoomID:   r.id,
			RoomName: r.name,
			Summary:  s,
			Chat:     append([]ChatMessage(nil), r.chat...),
		}
	}
	emit(Event{Kind: EventGameEnded, Ended: ended})
}

func (r *Room) appendChat(msg ChatMessage, limit int) {
	r.chat = append(r.chat, msg)
	if limit > 0 && len(r.chat) > limit {
		r.chat = append([]ChatMessage(nil), r.chat[len(r.chat)-limit:]...)
	}
}
