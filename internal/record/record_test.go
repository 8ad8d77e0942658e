package record

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/match"
	"github.com/park285/omok-server/internal/room"
)

func sampleRoomRecord() room.Record {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return room.Record{
		ID:       "m-1",
		RoomID:   "ABCD1234",
		RoomName: "alice's room",
		Summary: match.Summary{
			Round:  2,
			Black:  match.Participant{SessionID: "s1", Nickname: "alice"},
			White:  match.Participant{SessionID: "s2", Nickname: "bob"},
			Winner: board.First,
			Reason: match.ReasonFiveInRow,
			Moves: []match.Move{
				{Row: 7, Col: 7, Side: board.First, Nickname: "alice", At: start.Add(time.Second)},
				{Row: 0, Col: 0, Side: board.Second, Nickname: "bob", At: start.Add(2 * time.Second)},
			},
			StartedAt: start,
			EndedAt:   start.Add(90 * time.Second),
		},
		Chat: []room.ChatMessage{{ID: "c1", Nickname: "bob", Text: "gg", At: start}},
	}
}

func TestFromRoom(t *testing.T) {
	m := FromRoom(sampleRoomRecord())
	assert.Equal(t, "black", m.Winner)
	assert.Equal(t, "alice", m.WinnerNickname)
	assert.Equal(t, "five_in_row", m.Reason)
	assert.Equal(t, int64(90000), m.DurationMS)
	require.Len(t, m.Moves, 2)
	assert.Equal(t, "white", m.Moves[1].Side)
	assert.Equal(t, "gg", m.Chat[0].Text)
}

func TestFromRoomDraw(t *testing.T) {
	rec := sampleRoomRecord()
	rec.Winner = board.Empty
	rec.Reason = match.ReasonDraw
	m := FromRoom(rec)
	assert.Equal(t, "draw", m.Winner)
	assert.Empty(t, m.WinnerNickname)
}

func TestMemoryRecentNewestFirst(t *testing.T) {
	mem := NewMemory(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, mem.Record(ctx, MatchRecord{ID: id}))
	}
	got, err := mem.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRedisListCapsAndOrders(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	list := NewRedisList(rdb, "test", 2)
	ctx := context.Background()
	want := FromRoom(sampleRoomRecord())
	require.NoError(t, list.Record(ctx, MatchRecord{ID: "old"}))
	require.NoError(t, list.Record(ctx, MatchRecord{ID: "mid"}))
	require.NoError(t, list.Record(ctx, want))

	got, err := list.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want.ID, got[0].ID)
	assert.Equal(t, want.Black, got[0].Black)
	assert.Len(t, got[0].Moves, 2)
	assert.Equal(t, "mid", got[1].ID)
	assert.True(t, mr.Exists("test:matches:recent"))
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, MatchRecord) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	mem := NewMemory(10)
	boom := errors.New("boom")
	err := Fanout{mem, nil, failingRecorder{err: boom}}.Record(context.Background(), MatchRecord{ID: "x"})
	require.ErrorIs(t, err, boom)
	got, _ := mem.Recent(context.Background(), 1)
	require.Len(t, got, 1)
}

type blockingRecorder struct {
	mu      sync.Mutex
	release chan struct{}
	seen    []string
}

func (b *blockingRecorder) Record(ctx context.Context, m MatchRecord) error {
	<-b.release
	b.mu.Lock()
	b.seen = append(b.seen, m.ID)
	b.mu.Unlock()
	return nil
}

func TestAsyncDropsWhenFullAndDrainsOnClose(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	a := NewAsync(rec, 1, time.Second, nil)

	require.True(t, a.Submit(MatchRecord{ID: "1"}))
	// The worker may or may not have picked up "1" yet; fill until a drop occurs.
	dropped := false
	for i := 0; i < 3; i++ {
		if !a.Submit(MatchRecord{ID: "extra"}) {
			dropped = true
			break
		}
	}
	assert.True(t, dropped)

	close(rec.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
	assert.False(t, a.Submit(MatchRecord{ID: "late"}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "1", rec.seen[0])
}

func startWebhookServer(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
}

func TestWebhookRetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	var body atomic.Value
	client := startWebhookServer(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		body.Store(append([]byte(nil), ctx.PostBody()...))
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})

	hook := NewWebhook("http://hooks.local/matches", WithHTTPClient(client), WithRetry(3),
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-Token": "t"} }))
	require.NoError(t, hook.Record(context.Background(), FromRoom(sampleRoomRecord())))
	assert.Equal(t, int32(2), calls.Load())

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(body.Load().([]byte), &payload))
	assert.Equal(t, "match.finished", payload.Event)
	assert.Equal(t, "m-1", payload.Match.ID)
}

func TestWebhookDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	client := startWebhookServer(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})
	hook := NewWebhook("http://hooks.local/matches", WithHTTPClient(client), WithRetry(3))
	require.Error(t, hook.Record(context.Background(), MatchRecord{ID: "x"}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	assert.NoError(t, NewWebhook("  ").Record(context.Background(), MatchRecord{}))
}
