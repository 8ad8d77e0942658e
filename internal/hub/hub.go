package hub

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/account"
	"github.com/park285/omok-server/internal/msgcat"
	"github.com/park285/omok-server/internal/record"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/internal/session"
	"github.com/park285/omok-server/pkg/omokdto"
)

// Submitter accepts finished matches without blocking.
type Submitter interface {
	Submit(m record.MatchRecord) bool
}

// Deps are the collaborators a Hub is built from. Zero values fall back to
// in-memory implementations.
type Deps struct {
	Accounts        *account.Service
	Recorder        Submitter
	Catalog         *msgcat.Catalog
	Presence        session.Presence
	RequireAccounts bool
	SweepSpec       string
	StatsSpec       string
	Logger          *zap.Logger
	RoomOptions     []room.Option
}

// Hub routes inbound commands to the registry and fans room events out to
// sessions. It owns the registry and the session directory.
type Hub struct {
	rooms    *room.Registry
	dir      *session.Directory
	accounts *account.Service
	recorder Submitter
	msgs     *msgcat.Catalog

	requireAccounts bool
	sweepSpec       string
	statsSpec       string
	sched           *cron.Cron
	logger          *zap.Logger
}

func New(deps Deps) *Hub {
	h := &Hub{
		accounts:        deps.Accounts,
		recorder:        deps.Recorder,
		msgs:            deps.Catalog,
		requireAccounts: deps.RequireAccounts,
		sweepSpec:       deps.SweepSpec,
		statsSpec:       deps.StatsSpec,
		logger:          deps.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.accounts == nil {
		h.accounts = account.NewService(nil, account.WithLogger(h.logger))
	}
	if h.msgs == nil {
		h.msgs = msgcat.MustDefault()
	}
	if h.sweepSpec == "" {
		h.sweepSpec = "@every 1s"
	}
	opts := append([]room.Option{room.WithLogger(h.logger.Named("room"))}, deps.RoomOptions...)
	h.rooms = room.NewRegistry(h, opts...)
	h.dir = session.NewDirectory(h.rooms, deps.Presence)
	return h
}

// Rooms exposes the registry for read-only consumers such as the status API.
func (h *Hub) Rooms() *room.Registry { return h.rooms }

// Sessions exposes the directory.
func (h *Hub) Sessions() *session.Directory { return h.dir }

// Connect registers a new, unauthenticated connection.
func (h *Hub) Connect(sessionID string, sink session.Sink) {
	h.dir.Connect(sessionID, sink)
	h.logger.Debug("session_connected", zap.String("session", sessionID))
}

// Disconnect leaves any room and forgets the session. Safe to repeat.
func (h *Hub) Disconnect(sessionID string) {
	s, ok := h.dir.Disconnect(sessionID)
	if !ok {
		return
	}
	h.logger.Info("session_disconnected",
		zap.String("session", sessionID),
		zap.String("nickname", s.Nickname),
	)
}

// Stats is a point-in-time count of connections, rooms and accounts.
func (h *Hub) Stats() omokdto.Stats {
	total, authed := h.dir.Count()
	return omokdto.Stats{
		Connections:   total,
		Authenticated: authed,
		Rooms:         h.rooms.Count(),
		Accounts:      h.accounts.Count(),
	}
}
