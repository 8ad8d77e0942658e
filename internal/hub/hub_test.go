package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/omok-server/internal/account"
	"github.com/park285/omok-server/internal/record"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/pkg/omokdto"
)

type sink struct {
	mu     sync.Mutex
	frames []omokdto.Message
	full   bool
	closed string
}

func (s *sink) Deliver(frame any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full || s.closed != "" {
		return false
	}
	s.frames = append(s.frames, frame.(omokdto.Message))
	return true
}

func (s *sink) Close(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed != "" {
		return false
	}
	s.closed = reason
	return true
}

func (s *sink) take() []omokdto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.frames
	s.frames = nil
	return out
}

func (s *sink) types() []string {
	var out []string
	for _, f := range s.take() {
		out = append(out, f.Type)
	}
	return out
}

func only(t *testing.T, s *sink, typ string) omokdto.Message {
	t.Helper()
	frames := s.take()
	require.Len(t, frames, 1, "frames: %+v", frames)
	require.Equal(t, typ, frames[0].Type)
	return frames[0]
}

type submitted struct {
	mu   sync.Mutex
	recs []record.MatchRecord
}

func (s *submitted) Submit(m record.MatchRecord) bool {
	s.mu.Lock()
	s.recs = append(s.recs, m)
	s.mu.Unlock()
	return true
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	hub   *Hub
	clk   *clock
	recs  *submitted
	sinks map[string]*sink
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T, requireAccounts bool) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	recs := &submitted{}
	core, logs := observer.New(zap.DebugLevel)
	h := New(Deps{
		Logger:          zap.New(core),
		Accounts:        account.NewService(nil, account.WithHashCost(bcrypt.MinCost)),
		Recorder:        recs,
		RequireAccounts: requireAccounts,
		RoomOptions: []room.Option{
			room.WithClock(clk.Now),
			room.WithCoin(func() bool { return true }),
			room.WithTurnTimeout(time.Minute),
		},
	})
	return &fixture{hub: h, clk: clk, recs: recs, sinks: map[string]*sink{}, logs: logs}
}

func (f *fixture) connect(id string) *sink {
	s := &sink{}
	f.sinks[id] = s
	f.hub.Connect(id, s)
	return s
}

func (f *fixture) send(t *testing.T, id, typ string, data any) {
	t.Helper()
	env := omokdto.Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		env.Data = raw
	}
	f.hub.Handle(id, env)
}

// login connects and joins id under nickname, discarding the auth frame.
func (f *fixture) login(t *testing.T, id, nickname string) *sink {
	t.Helper()
	s := f.connect(id)
	f.send(t, id, omokdto.CmdJoin, omokdto.JoinRequest{Nickname: nickname})
	only(t, s, omokdto.EvtAuthOK)
	return s
}

func (f *fixture) drain() {
	for _, s := range f.sinks {
		s.take()
	}
}

// playing sets up alice (black) vs bob (white) and returns the room id.
func (f *fixture) playing(t *testing.T) string {
	t.Helper()
	f.login(t, "a", "alice")
	f.login(t, "b", "bob")
	f.send(t, "a", omokdto.CmdRoomCreate, omokdto.CreateRoomRequest{Name: "duel"})
	roomID, ok := f.hub.Rooms().RoomOf("a")
	require.True(t, ok)
	f.send(t, "b", omokdto.CmdRoomJoin, omokdto.JoinRoomRequest{RoomID: roomID})
	f.drain()
	return roomID
}

func TestJoinSendsFullRoomList(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "a", "alice")
	f.send(t, "a", omokdto.CmdRoomCreate, omokdto.CreateRoomRequest{})

	s := f.connect("b")
	f.send(t, "b", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "bob"})
	msg := only(t, s, omokdto.EvtAuthOK)
	ok := msg.Data.(omokdto.AuthOK)
	assert.Equal(t, "bob", ok.Nickname)
	require.Len(t, ok.Rooms, 1)
	assert.Equal(t, "alice's room", ok.Rooms[0].Name)
	assert.Equal(t, 1, ok.Rooms[0].Players)
}

func TestDuplicateNicknameGetsAuthError(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "a", "alice")
	s := f.connect("b")
	f.send(t, "b", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "ALICE"})
	msg := only(t, s, omokdto.EvtAuthError)
	assert.Equal(t, "nickname_in_use", msg.Data.(omokdto.DomainError).Code)
}

func TestCommandsBeforeJoinAreRejected(t *testing.T) {
	f := newFixture(t, false)
	s := f.connect("a")
	f.send(t, "a", omokdto.CmdRoomCreate, omokdto.CreateRoomRequest{})
	msg := only(t, s, omokdto.EvtError)
	assert.Equal(t, "not_authenticated", msg.Data.(omokdto.DomainError).Code)

	f.send(t, "a", "fly", nil)
	msg = only(t, s, omokdto.EvtError)
	de := msg.Data.(omokdto.DomainError)
	assert.Equal(t, "unknown_command", de.Code)
	assert.Equal(t, "Unknown command fly.", de.Message)
}

func TestMatchFlowBroadcastsToRoom(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "a", "alice")
	f.login(t, "b", "bob")
	lobby := f.login(t, "c", "carol")

	f.send(t, "a", omokdto.CmdRoomCreate, omokdto.CreateRoomRequest{Name: "duel"})
	assert.Equal(t, []string{omokdto.EvtRoomSnapshot, omokdto.EvtRoomsList}, f.sinks["a"].types())
	assert.Equal(t, []string{omokdto.EvtRoomsList}, lobby.types())
	f.sinks["b"].take()

	roomID, _ := f.hub.Rooms().RoomOf("a")
	f.send(t, "b", omokdto.CmdRoomJoin, omokdto.JoinRoomRequest{RoomID: roomID})
	assert.Equal(t, []string{omokdto.EvtGameStarted, omokdto.EvtRoomSnapshot, omokdto.EvtRoomsList}, f.sinks["b"].types())
	f.drain()

	row, col := 7, 7
	f.send(t, "a", omokdto.CmdMove, omokdto.MoveRequest{Row: &row, Col: &col})
	msg := only(t, f.sinks["b"], omokdto.EvtMoveApplied)
	applied := msg.Data.(omokdto.MoveApplied)
	assert.Equal(t, "black", applied.Move.Side)
	assert.Equal(t, "white", applied.Next)
	require.NotNil(t, applied.Deadline)
	only(t, f.sinks["a"], omokdto.EvtMoveApplied)
	assert.Empty(t, lobby.take())
}

func TestRejectedMoveReachesOnlySender(t *testing.T) {
	f := newFixture(t, false)
	f.playing(t)

	row, col := 7, 7
	f.send(t, "b", omokdto.CmdMove, omokdto.MoveRequest{Row: &row, Col: &col})
	msg := only(t, f.sinks["b"], omokdto.EvtError)
	de := msg.Data.(omokdto.DomainError)
	assert.Equal(t, "not_your_turn", de.Code)
	assert.True(t, de.Retryable)
	assert.Empty(t, f.sinks["a"].take())

	f.send(t, "a", omokdto.CmdMove, omokdto.MoveRequest{Row: &row})
	assert.Equal(t, "malformed_command", only(t, f.sinks["a"], omokdto.EvtError).Data.(omokdto.DomainError).Code)

	bad := 15
	f.send(t, "a", omokdto.CmdMove, omokdto.MoveRequest{Row: &bad, Col: &col})
	assert.Equal(t, "out_of_bounds", only(t, f.sinks["a"], omokdto.EvtError).Data.(omokdto.DomainError).Code)
	assert.Empty(t, f.sinks["b"].take())
}

func TestFiveInRowEndsAndRecordsOnce(t *testing.T) {
	f := newFixture(t, false)
	f.playing(t)
	for i := 0; i < 5; i++ {
		r, c := 7, 7+i
		f.send(t, "a", omokdto.CmdMove, omokdto.MoveRequest{Row: &r, Col: &c})
		if i < 4 {
			r2, c2 := 0, i
			f.send(t, "b", omokdto.CmdMove, omokdto.MoveRequest{Row: &r2, Col: &c2})
		}
	}
	var ended []omokdto.GameEnded
	for _, m := range f.sinks["b"].take() {
		if m.Type == omokdto.EvtGameEnded {
			ended = append(ended, m.Data.(omokdto.GameEnded))
		}
	}
	require.Len(t, ended, 1)
	assert.Equal(t, "black", ended[0].Winner)
	assert.Equal(t, "alice", ended[0].WinnerNickname)
	assert.Equal(t, "five_in_row", ended[0].Reason)

	require.Len(t, f.recs.recs, 1)
	assert.Equal(t, ended[0].MatchID, f.recs.recs[0].ID)
	assert.Len(t, f.recs.recs[0].Moves, 9)
}

func TestDisconnectMidPlayAbortsOnce(t *testing.T) {
	f := newFixture(t, false)
	f.playing(t)

	f.hub.Disconnect("a")
	f.hub.Disconnect("a")

	var ended int
	for _, m := range f.sinks["b"].take() {
		if m.Type == omokdto.EvtGameEnded {
			ended++
			ge := m.Data.(omokdto.GameEnded)
			assert.Equal(t, "opponent_left", ge.Reason)
			assert.Equal(t, "bob", ge.WinnerNickname)
		}
	}
	assert.Equal(t, 1, ended)
	require.Len(t, f.recs.recs, 1)
	assert.Equal(t, "white", f.recs.recs[0].Winner)
}

func TestLeaveAcksAndSecondLeaveFails(t *testing.T) {
	f := newFixture(t, false)
	s := f.login(t, "a", "alice")
	f.send(t, "a", omokdto.CmdRoomCreate, omokdto.CreateRoomRequest{Name: "solo"})
	roomID, _ := f.hub.Rooms().RoomOf("a")
	s.take()

	f.send(t, "a", omokdto.CmdRoomLeave, nil)
	frames := s.take()
	require.Len(t, frames, 2)
	assert.Equal(t, omokdto.EvtRoomsList, frames[0].Type)
	assert.Equal(t, []string{roomID}, frames[0].Data.(omokdto.RoomsList).Removed)
	assert.Equal(t, omokdto.RoomLeft{RoomID: roomID}, frames[1].Data)

	f.send(t, "a", omokdto.CmdRoomLeave, nil)
	assert.Equal(t, "not_in_room", only(t, s, omokdto.EvtError).Data.(omokdto.DomainError).Code)
}

func TestSweepBroadcastsTimeout(t *testing.T) {
	f := newFixture(t, false)
	f.playing(t)
	f.clk.Advance(time.Minute + time.Second)

	assert.Equal(t, 1, f.hub.Sweep())
	msg := only(t, f.sinks["a"], omokdto.EvtGameTimeout)
	to := msg.Data.(omokdto.GameTimeout)
	assert.Equal(t, "alice", to.Nickname)
	assert.Equal(t, "white", to.Next)
	only(t, f.sinks["b"], omokdto.EvtGameTimeout)
}

func TestSlowConsumerIsKicked(t *testing.T) {
	f := newFixture(t, false)
	f.playing(t)
	f.sinks["b"].full = true

	chat := omokdto.ChatRequest{Text: "hi"}
	f.send(t, "a", omokdto.CmdChatSend, chat)
	assert.Equal(t, slowConsumerReason, f.sinks["b"].closed)
	only(t, f.sinks["a"], omokdto.EvtChatMessage)
	assert.Equal(t, 1, f.logs.FilterMessage("ws_slow_consumer").Len())

	// b is already closing; further undeliverable frames are not new kicks.
	f.send(t, "a", omokdto.CmdChatSend, chat)
	only(t, f.sinks["a"], omokdto.EvtChatMessage)
	assert.Equal(t, 1, f.logs.FilterMessage("ws_slow_consumer").Len())
}

func TestRegisteredNicknames(t *testing.T) {
	f := newFixture(t, false)
	s := f.connect("a")
	f.send(t, "a", omokdto.CmdRegister, omokdto.RegisterRequest{Nickname: "Alice01", Password: "secret1"})
	only(t, s, omokdto.EvtAuthRegistered)

	g := f.connect("g")
	f.send(t, "g", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "alice01"})
	assert.Equal(t, "nickname_registered", only(t, g, omokdto.EvtAuthError).Data.(omokdto.DomainError).Code)

	f.send(t, "g", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "alice01", Password: "nope123"})
	assert.Equal(t, "wrong_credentials", only(t, g, omokdto.EvtAuthError).Data.(omokdto.DomainError).Code)

	f.send(t, "a", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "alice01", Password: "secret1"})
	ok := only(t, s, omokdto.EvtAuthOK).Data.(omokdto.AuthOK)
	assert.Equal(t, "Alice01", ok.Nickname)
	assert.True(t, ok.Registered)
}

func TestRequireAccountsRejectsGuests(t *testing.T) {
	f := newFixture(t, true)
	s := f.connect("a")
	f.send(t, "a", omokdto.CmdJoin, omokdto.JoinRequest{Nickname: "guest"})
	assert.Equal(t, "account_required", only(t, s, omokdto.EvtAuthError).Data.(omokdto.DomainError).Code)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	h := New(Deps{SweepSpec: "every now and then"})
	require.Error(t, h.Start())

	ok := New(Deps{StatsSpec: "@every 1h"})
	require.NoError(t, ok.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ok.Stop(ctx))
}

func TestHandleFrameRejectsGarbage(t *testing.T) {
	f := newFixture(t, false)
	s := f.connect("a")
	f.hub.HandleFrame("a", []byte("{nope"))
	assert.Equal(t, "malformed_command", only(t, s, omokdto.EvtError).Data.(omokdto.DomainError).Code)

	f.hub.HandleFrame("a", []byte(`{"type":"join","data":{"nickname":"alice"}}`))
	only(t, s, omokdto.EvtAuthOK)
}
