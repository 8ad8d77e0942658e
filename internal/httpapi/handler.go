package httpapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/hub"
	"github.com/park285/omok-server/internal/record"
	"github.com/park285/omok-server/internal/render"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/pkg/omokdto"
)

// Rooms is the read side of the room registry.
type Rooms interface {
	List(publicOnly bool) []room.Summary
	Find(roomID string) (room.View, bool)
}

type Handler struct {
	rooms   Rooms
	recent  record.Lister
	stats   func() omokdto.Stats
	limit   int
	logger  *zap.Logger
	started time.Time
}

type Option func(*Handler)

func WithRecent(l record.Lister, limit int) Option {
	return func(h *Handler) {
		h.recent = l
		if limit > 0 {
			h.limit = limit
		}
	}
}

func WithStats(fn func() omokdto.Stats) Option { return func(h *Handler) { h.stats = fn } }

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(rooms Rooms, opts ...Option) *Handler {
	h := &Handler{rooms: rooms, limit: 50, logger: zap.NewNop(), started: time.Now()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is the fasthttp entry point.
func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "healthz":
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(h.started).Round(time.Second).String(),
		})
	case path == "stats" && h.stats != nil:
		writeJSON(ctx, fasthttp.StatusOK, h.stats())
	case path == "rooms":
		writeJSON(ctx, fasthttp.StatusOK, omokdto.RoomsList{Full: true, Rooms: hub.ToSummaries(h.rooms.List(true))})
	case len(parts) == 2 && parts[0] == "rooms":
		v, ok := h.rooms.Find(parts[1])
		if !ok {
			writeError(ctx, fasthttp.StatusNotFound, "room_not_found")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, hub.ToSnapshot(v))
	case len(parts) == 3 && parts[0] == "rooms" && parts[2] == "board.png":
		h.boardPNG(ctx, parts[1])
	case path == "matches/recent":
		h.recentMatches(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found")
	}
}

func (h *Handler) boardPNG(ctx *fasthttp.RequestCtx, roomID string) {
	v, ok := h.rooms.Find(roomID)
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, "room_not_found")
		return
	}
	opts := render.Options{}
	if cell, err := strconv.Atoi(string(ctx.QueryArgs().Peek("cell"))); err == nil {
		opts.CellSize = cell
	}
	if n := len(v.Moves); n > 0 {
		opts.LastMove = &render.LastMove{Row: v.Moves[n-1].Row, Col: v.Moves[n-1].Col}
	}
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := render.BoardPNG(rctx, &v.Board, opts)
	if err != nil {
		h.logger.Warn("board_render_error", zap.String("room", v.ID), zap.Error(err))
		writeError(ctx, fasthttp.StatusBadRequest, "render_failed")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(raw)
}

func (h *Handler) recentMatches(ctx *fasthttp.RequestCtx) {
	if h.recent == nil {
		writeJSON(ctx, fasthttp.StatusOK, []record.MatchRecord{})
		return
	}
	limit := h.limit
	if n, err := strconv.Atoi(string(ctx.QueryArgs().Peek("limit"))); err == nil && n > 0 && n < limit {
		limit = n
	}
	rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	list, err := h.recent.Recent(rctx, limit)
	if err != nil {
		h.logger.Error("recent_matches_error", zap.Error(err))
		writeError(ctx, fasthttp.StatusServiceUnavailable, "persistence_failure")
		return
	}
	if list == nil {
		list = []record.MatchRecord{}
	}
	writeJSON(ctx, fasthttp.StatusOK, list)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code string) {
	writeJSON(ctx, status, omokdto.DomainError{Code: code, Message: fasthttp.StatusMessage(status)})
}
