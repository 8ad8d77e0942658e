package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/gameerr"
	"github.com/park285/omok-server/internal/match"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	alice = Member{SessionID: "s-alice", Nickname: "alice"}
	bob   = Member{SessionID: "s-bob", Nickname: "bob"}
	carol = Member{SessionID: "s-carol", Nickname: "carol"}
)

func newTestRegistry(t *testing.T) (*Registry, *recorder, *fakeClock) {
	t.Helper()
	rec := &recorder{}
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	// the first seated player always takes black
	reg := NewRegistry(rec, WithClock(clk.Now), WithCoin(func() bool { return true }))
	return reg, rec, clk
}

func playingRoom(t *testing.T, reg *Registry) string {
	t.Helper()
	v, err := reg.Open(alice, "", "", VisibilityPublic)
	require.NoError(t, err)
	require.Equal(t, "alice's room", v.Name)
	role, _, err := reg.Join(bob, v.ID, "")
	require.NoError(t, err)
	require.Equal(t, RolePlayer, role)
	got, ok := reg.Find(v.ID)
	require.True(t, ok)
	require.Equal(t, match.StatusPlaying, got.Status)
	return v.ID
}

func TestCreateSeatsCreatorAndLists(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	v, err := reg.Open(alice, "  Friday  ", "", VisibilityPublic)
	require.NoError(t, err)
	require.Len(t, v.ID, 8)
	require.Equal(t, "Friday", v.Name)
	require.Equal(t, 1, v.Players)
	require.Equal(t, match.StatusWaiting, v.Status)
	require.Len(t, rec.kinds(EventListUpsert), 1)

	_, err = reg.Open(alice, "again", "", VisibilityPublic)
	require.ErrorIs(t, err, gameerr.ErrAlreadyInRoom)

	_, err = reg.Open(bob, "hidden", "", VisibilityPrivate)
	require.NoError(t, err)
	require.Len(t, reg.List(true), 1)
	require.Len(t, reg.List(false), 2)
	require.Len(t, rec.kinds(EventListUpsert), 1, "private rooms are never listed")
}

func TestJoinWithWrongPassword(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	reg.idGen = func() (string, error) { return "ROOMABC1", nil }
	v, err := reg.Open(carol, "locked", "abc", VisibilityPublic)
	require.NoError(t, err)
	require.True(t, v.HasPassword)
	require.Equal(t, match.StatusWaiting, v.Status)
	require.Equal(t, 1, v.Players)

	_, _, err = reg.Join(alice, v.ID, "xyz")
	require.ErrorIs(t, err, gameerr.ErrBadPassword)
	got, _ := reg.Find(v.ID)
	require.Equal(t, 1, got.Players)
	require.Equal(t, match.StatusWaiting, got.Status)
	_, inRoom := reg.RoomOf(alice.SessionID)
	require.False(t, inRoom)

	_, _, err = reg.Join(alice, "nope", "")
	require.ErrorIs(t, err, gameerr.ErrRoomNotFound)

	role, joined, err := reg.Join(alice, "roomabc1", "abc")
	require.NoError(t, err)
	require.Equal(t, RolePlayer, role)
	require.Equal(t, match.StatusPlaying, joined.Status)
}

func TestRoomDestroyedWhenLastOccupantLeaves(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	v, err := reg.Open(alice, "brief", "", VisibilityPublic)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Count())

	require.True(t, reg.Leave(alice.SessionID))
	_, ok := reg.Find(v.ID)
	require.False(t, ok)
	require.Equal(t, 0, reg.Count())
	require.Empty(t, reg.List(false))
	require.Len(t, rec.kinds(EventListRemove), 1)
}

func TestThirdJoinerSpectates(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	require.Len(t, rec.kinds(EventGameStarted), 1)

	role, v, err := reg.Join(carol, id, "")
	require.NoError(t, err)
	require.Equal(t, RoleSpectator, role)
	require.Equal(t, []string{"carol"}, v.Watchers)

	_, err = reg.Promote(carol.SessionID)
	require.ErrorIs(t, err, gameerr.ErrRoomFull)
	_, err = reg.Move(carol.SessionID, 0, 0)
	require.ErrorIs(t, err, gameerr.ErrNotAPlayer)
}

func TestMoveBroadcastAndWin(t *testing.T) {
	reg, rec, clk := newTestRegistry(t)
	id := playingRoom(t, reg)
	_, _, err := reg.Join(carol, id, "")
	require.NoError(t, err)
	rec.reset()

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		res, err := reg.Move(alice.SessionID, 7, 7+i)
		require.NoError(t, err)
		if res.Ended {
			require.Equal(t, 4, i)
			break
		}
		_, err = reg.Move(bob.SessionID, 8, 7+i)
		require.NoError(t, err)
	}

	applied := rec.kinds(EventMoveApplied)
	require.Len(t, applied, 9)
	require.ElementsMatch(t, []string{alice.SessionID, bob.SessionID, carol.SessionID}, applied[0].Audience)

	ended := rec.kinds(EventGameEnded)
	require.Len(t, ended, 1)
	require.Equal(t, board.First, ended[0].Ended.Winner)
	require.Equal(t, "alice", ended[0].Ended.WinnerNickname)
	require.NotNil(t, ended[0].Ended.Record)
	require.Equal(t, id, ended[0].Ended.Record.RoomID)
	require.Equal(t, 4*time.Second+time.Second, ended[0].Ended.Record.Duration())

	_, err = reg.Move(bob.SessionID, 0, 0)
	require.ErrorIs(t, err, gameerr.ErrNotPlaying)
}

func TestLeaveAfterEndResetsAndNewcomerStartsNextRound(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	for i := 0; i < 5; i++ {
		res, err := reg.Move(alice.SessionID, 7, 7+i)
		require.NoError(t, err)
		if res.Ended {
			break
		}
		_, err = reg.Move(bob.SessionID, 8, 7+i)
		require.NoError(t, err)
	}
	got, _ := reg.Find(id)
	require.Equal(t, match.StatusEnded, got.Status)

	require.True(t, reg.Leave(bob.SessionID))
	got, _ = reg.Find(id)
	require.Equal(t, match.StatusWaiting, got.Status)
	require.Equal(t, 1, got.Players)

	role, v, err := reg.Join(carol, id, "")
	require.NoError(t, err)
	require.Equal(t, RolePlayer, role)
	require.Equal(t, match.StatusPlaying, v.Status)
	require.Equal(t, 2, v.Round)
	require.Empty(t, v.Moves)

	records := 0
	for _, ev := range rec.kinds(EventGameEnded) {
		if ev.Ended.Record != nil {
			records++
		}
	}
	require.Equal(t, 1, records)
}

func TestRejectedMoveLeavesStateAndEmitsNothing(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	rec.reset()
	before, _ := reg.Find(id)

	_, err := reg.Move(bob.SessionID, 7, 7)
	require.ErrorIs(t, err, gameerr.ErrNotYourTurn)
	_, err = reg.Move(alice.SessionID, -1, 7)
	require.ErrorIs(t, err, gameerr.ErrOutOfBounds)

	after, _ := reg.Find(id)
	require.Equal(t, before.Board, after.Board)
	require.Equal(t, before.Deadline, after.Deadline)
	rec.mu.Lock()
	require.Empty(t, rec.events)
	rec.mu.Unlock()
}

func TestConcurrentMovesOnSameCell(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	_, err := reg.Move(alice.SessionID, 0, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Move(bob.SessionID, 5, 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	require.Equal(t, 1, ok)
	v, _ := reg.Find(id)
	require.Len(t, v.Moves, 2)
}

func TestDisconnectMidGameAborts(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	rec.reset()

	require.True(t, reg.Leave(bob.SessionID))
	require.False(t, reg.Leave(bob.SessionID), "second leave is a no-op")

	ended := rec.kinds(EventGameEnded)
	require.Len(t, ended, 1)
	require.Equal(t, match.ReasonOpponentLeft, ended[0].Ended.Reason)
	require.Equal(t, "alice", ended[0].Ended.WinnerNickname)
	require.Contains(t, ended[0].Audience, bob.SessionID)

	v, ok := reg.Find(id)
	require.True(t, ok)
	require.Equal(t, match.StatusAborted, v.Status)
	require.Equal(t, 1, v.Players)
	_, err := reg.VoteRematch(alice.SessionID)
	require.ErrorIs(t, err, gameerr.ErrNotEnded)
}

func TestBothPlayersLeaveSpectatorRemains(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	id := playingRoom(t, reg)
	_, _, err := reg.Join(carol, id, "")
	require.NoError(t, err)

	require.True(t, reg.Leave(alice.SessionID))
	require.True(t, reg.Leave(bob.SessionID))
	require.Len(t, rec.kinds(EventGameEnded), 1)

	v, ok := reg.Find(id)
	require.True(t, ok, "spectator keeps the room alive")
	require.Equal(t, 0, v.Players)
	require.Equal(t, match.StatusWaiting, v.Status)

	v, err = reg.Promote(carol.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, v.Players)
	require.Equal(t, 0, v.Spectators)
	require.Equal(t, match.StatusWaiting, v.Status)

	require.True(t, reg.Leave(carol.SessionID))
	_, ok = reg.Find(id)
	require.False(t, ok)
	require.Len(t, rec.kinds(EventListRemove), 1)
	require.Equal(t, 0, reg.Count())
}

func TestPromotionStartsMatch(t *testing.T) {
	reg, rec, _ := newTestRegistry(t)
	v, err := reg.Open(alice, "", "", VisibilityPublic)
	require.NoError(t, err)
	_, _, err = reg.Join(bob, v.ID, "")
	require.NoError(t, err)
	_, _, err = reg.Join(carol, v.ID, "")
	require.NoError(t, err)

	// bob steps down mid-game; alice wins, carol takes the seat
	_, err = reg.Spectate(bob.SessionID)
	require.NoError(t, err)
	require.Len(t, rec.kinds(EventGameEnded), 1)

	got, err := reg.Promote(carol.SessionID)
	require.NoError(t, err)
	require.Equal(t, match.StatusPlaying, got.Status)
	require.Len(t, rec.kinds(EventGameStarted), 2)
	require.Equal(t, []string{"bob"}, got.Watchers)
}

func TestRematchNeedsBothVotes(t *testing.T) {
	reg, rec, clk := newTestRegistry(t)
	id := playingRoom(t, reg)
	_, err := reg.VoteRematch(alice.SessionID)
	require.ErrorIs(t, err, gameerr.ErrNotEnded)

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		res, err := reg.Move(alice.SessionID, 3+i, 3)
		require.NoError(t, err)
		if res.Ended {
			break
		}
		_, err = reg.Move(bob.SessionID, 3+i, 4)
		require.NoError(t, err)
	}

	restarted, err := reg.VoteRematch(alice.SessionID)
	require.NoError(t, err)
	require.False(t, restarted)
	v, _ := reg.Find(id)
	require.Equal(t, match.StatusEnded, v.Status)
	require.True(t, v.PlayerList[0].WantsRematch)

	restarted, err = reg.VoteRematch(bob.SessionID)
	require.NoError(t, err)
	require.True(t, restarted)
	v, _ = reg.Find(id)
	require.Equal(t, match.StatusPlaying, v.Status)
	require.Equal(t, 2, v.Round)
	require.Empty(t, v.Moves)
	require.False(t, v.PlayerList[0].WantsRematch)
	require.Len(t, rec.kinds(EventGameStarted), 2)
}

func TestSweepSkipsTurn(t *testing.T) {
	reg, rec, clk := newTestRegistry(t)
	id := playingRoom(t, reg)
	require.Equal(t, 0, reg.Sweep())

	clk.Advance(match.DefaultTurnTimeout + time.Second)
	require.Equal(t, 1, reg.Sweep())
	timeouts := rec.kinds(EventTimeout)
	require.Len(t, timeouts, 1)
	require.Equal(t, board.First, timeouts[0].Timeout.TimedOut)

	v, _ := reg.Find(id)
	require.Equal(t, board.Second, v.ToMove)
	require.Empty(t, v.Moves)
	require.Equal(t, 0, v.Board.Count(board.First)+v.Board.Count(board.Second))

	// the obligation moved to bob
	_, err := reg.Move(alice.SessionID, 1, 1)
	require.ErrorIs(t, err, gameerr.ErrNotYourTurn)
	_, err = reg.Move(bob.SessionID, 1, 1)
	require.NoError(t, err)
}

func TestChatHistoryBounded(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec, WithChatHistory(3))
	v, err := reg.Open(alice, "", "", VisibilityPublic)
	require.NoError(t, err)

	_, err = reg.Chat(alice.SessionID, "   ")
	require.ErrorIs(t, err, gameerr.ErrEmptyMessage)
	_, err = reg.Chat(bob.SessionID, "hi")
	require.ErrorIs(t, err, gameerr.ErrNotInRoom)

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := reg.Chat(alice.SessionID, " "+text+" ")
		require.NoError(t, err)
	}
	got, _ := reg.Find(v.ID)
	require.Len(t, got.Chat, 3)
	require.Equal(t, "two", got.Chat[0].Text)
	require.Len(t, rec.kinds(EventChat), 4)
}
