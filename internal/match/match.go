package match

import (
	"time"

	"github.com/park285/omok-server/internal/board"
)

// DefaultTurnTimeout is the per-turn deadline applied when none is configured.
const DefaultTurnTimeout = 5 * time.Minute

// Status is the lifecycle of a match.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
	StatusAborted Status = "aborted"
)

// Reason explains why a match left the playing state.
type Reason string

const (
	ReasonFiveInRow    Reason = "five_in_row"
	ReasonDraw         Reason = "draw"
	ReasonOpponentLeft Reason = "opponent_left"
)

// Participant identifies a seated player by session.
type Participant struct {
	SessionID string `json:"-"`
	Nickname  string `json:"nickname"`
}

// Move is one accepted placement.
type Move struct {
	Row      int         `json:"row"`
	Col      int         `json:"col"`
	Side     board.Stone `json:"-"`
	Nickname string      `json:"nickname"`
	At       time.Time   `json:"at"`
}

var (
	ErrNotPlaying  = errf("match is not in progress")
	ErrNotAPlayer  = errf("session is not seated in this match")
	ErrNotYourTurn = errf("not your turn")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }

// Match is the game embedded in a room. It is not safe for concurrent use;
// the owning room serializes access.
type Match struct {
	timeout time.Duration

	status Status
	grid   board.Board
	moves  []Move
	toMove board.Stone

	black Participant
	white Participant

	startedAt time.Time
	endedAt   time.Time
	deadline  time.Time

	winner board.Stone
	reason Reason

	round    int
	reported bool
}

// New returns a waiting match with the given per-turn timeout.
func New(turnTimeout time.Duration) *Match {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Match{timeout: turnTimeout, status: StatusWaiting}
}

func (m *Match) Status() Status { return m.status }
func (m *Match) ToMove() board.Stone { return m.toMove }
func (m *Match) Deadline() time.Time { return m.deadline }
func (m *Match) Winner() board.Stone { return m.winner }
func (m *Match) Reason() Reason { return m.reason }
func (m *Match) Round() int { return m.round }
func (m *Match) StartedAt() time.Time { return m.startedAt }
func (m *Match) EndedAt() time.Time { return m.endedAt }

func (m *Match) TurnTimeout() time.Duration { return m.timeout }

// Board returns a copy of the grid.
func (m *Match) Board() board.Board { return m.grid }

// Moves returns a copy of the move list.
func (m *Match) Moves() []Move {
	out := make([]Move, len(m.moves))
	copy(out, m.moves)
	return out
}

// Seat returns the participant playing side.
func (m *Match) Seat(side board.Stone) Participant {
	switch side {
	case board.First:
		return m.black
	case board.Second:
		return m.white
	default:
		return Participant{}
	}
}

// SideOf returns the side held by sessionID in the current round.
func (m *Match) SideOf(sessionID string) board.Stone {
	if sessionID == "" {
		return board.Empty
	}
	switch sessionID {
	case m.black.SessionID:
		return board.First
	case m.white.SessionID:
		return board.Second
	default:
		return board.Empty
	}
}

// Start begins a fresh round. aFirst decides whether a takes the first side.
func (m *Match) Start(a, b Participant, aFirst bool, now time.Time) {
	if aFirst {
		m.black, m.white = a, b
	} else {
		m.black, m.white = b, a
	}
	m.grid = board.Board{}
	m.moves = nil
	m.status = StatusPlaying
	m.toMove = board.First
	m.startedAt = now
	m.endedAt = time.Time{}
	m.deadline = time.Time{}
	m.deadline = m.nextDeadline(now)
	m.winner = board.Empty
	m.reason = ""
	m.round++
	m.reported = false
}

// Reset returns the match to waiting and clears the previous round.
func (m *Match) Reset() {
	m.status = StatusWaiting
	m.grid = board.Board{}
	m.moves = nil
	m.toMove = board.Empty
	m.black, m.white = Participant{}, Participant{}
	m.deadline = time.Time{}
	m.winner = board.Empty
	m.reason = ""
}

// MoveResult describes an accepted move.
type MoveResult struct {
	Move     Move
	Ended    bool
	Winner   board.Stone
	Reason   Reason
	Next     board.Stone
	Deadline time.Time
}

// Move validates and applies a placement by sessionID. A rejected move leaves
// the match untouched.
func (m *Match) Move(sessionID string, row, col int, now time.Time) (MoveResult, error) {
	if m.status != StatusPlaying {
		return MoveResult{}, ErrNotPlaying
	}
	side := m.SideOf(sessionID)
	if side == board.Empty {
		return MoveResult{}, ErrNotAPlayer
	}
	if side != m.toMove {
		return MoveResult{}, ErrNotYourTurn
	}
	if err := m.grid.Place(row, col, side); err != nil {
		return MoveResult{}, err
	}
	mv := Move{Row: row, Col: col, Side: side, Nickname: m.Seat(side).Nickname, At: now}
	m.moves = append(m.moves, mv)

	res := MoveResult{Move: mv}
	switch {
	case m.grid.CheckWin(row, col, side):
		m.finish(side, ReasonFiveInRow, now)
		res.Ended, res.Winner, res.Reason = true, side, ReasonFiveInRow
	case m.grid.IsFull():
		m.finish(board.Empty, ReasonDraw, now)
		res.Ended, res.Reason = true, ReasonDraw
	default:
		m.toMove = side.Opponent()
		m.deadline = m.nextDeadline(now)
		res.Next, res.Deadline = m.toMove, m.deadline
	}
	return res, nil
}

// TimeoutResult describes a skipped turn.
type TimeoutResult struct {
	TimedOut board.Stone
	Nickname string
	Next     board.Stone
	Deadline time.Time
}

// Expire passes the turn to the other side once the deadline has elapsed.
// No stone is placed.
func (m *Match) Expire(now time.Time) (TimeoutResult, bool) {
	if m.status != StatusPlaying || !now.After(m.deadline) {
		return TimeoutResult{}, false
	}
	out := TimeoutResult{TimedOut: m.toMove, Nickname: m.Seat(m.toMove).Nickname}
	m.toMove = m.toMove.Opponent()
	m.deadline = m.nextDeadline(now)
	out.Next, out.Deadline = m.toMove, m.deadline
	return out, true
}

// Abort ends a playing match because sessionID left. The opponent wins.
func (m *Match) Abort(sessionID string, now time.Time) (board.Stone, bool) {
	if m.status != StatusPlaying {
		return board.Empty, false
	}
	side := m.SideOf(sessionID)
	if side == board.Empty {
		return board.Empty, false
	}
	winner := side.Opponent()
	m.winner = winner
	m.reason = ReasonOpponentLeft
	m.endedAt = now
	m.deadline = time.Time{}
	m.toMove = board.Empty
	m.status = StatusAborted
	return winner, true
}

func (m *Match) finish(winner board.Stone, reason Reason, now time.Time) {
	m.status = StatusEnded
	m.winner = winner
	m.reason = reason
	m.endedAt = now
	m.toMove = board.Empty
	m.deadline = time.Time{}
}

// deadlines never move backwards, even if the clock repeats a value
func (m *Match) nextDeadline(now time.Time) time.Time {
	d := now.Add(m.timeout)
	if !d.After(m.deadline) {
		d = m.deadline.Add(time.Millisecond)
	}
	return d
}

// Summary is the finished-round view handed to persistence.
type Summary struct {
	Round     int
	Black     Participant
	White     Participant
	Winner    board.Stone
	Reason    Reason
	Moves     []Move
	StartedAt time.Time
	EndedAt   time.Time
}

// TakeSummary returns the round's summary once per finished round.
func (m *Match) TakeSummary() (Summary, bool) {
	if m.reported || (m.status != StatusEnded && m.status != StatusAborted) {
		return Summary{}, false
	}
	m.reported = true
	return Summary{
		Round:     m.round,
		Black:     m.black,
		White:     m.white,
		Winner:    m.winner,
		Reason:    m.reason,
		Moves:     m.Moves(),
		StartedAt: m.startedAt,
		EndedAt:   m.endedAt,
	}, true
}
