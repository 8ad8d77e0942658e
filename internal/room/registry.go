package room

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/board"
	"github.com/park285/omok-server/internal/gameerr"
	"github.com/park285/omok-server/internal/match"
)

const (
	maxRoomNameRunes = 30
	maxPasswordRunes = 30
	maxChatRunes     = 500
)

// Registry owns every room and the session→room membership index.
// Lock order is Registry.mu before Room.mu; per-room commands take only the
// room lock after a short index lookup.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]string

	pub         Publisher
	now         func() time.Time
	coin        func() bool
	idGen       func() (string, error)
	turnTimeout time.Duration
	chatLimit   int
	logger      *zap.Logger
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }
func WithCoin(coin func() bool) Option { return func(r *Registry) { r.coin = coin } }

func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.idGen = gen }
}

func WithTurnTimeout(d time.Duration) Option {
	return func(r *Registry) { r.turnTimeout = d }
}

func WithChatHistory(limit int) Option {
	return func(r *Registry) { r.chatLimit = limit }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(pub Publisher, opts ...Option) *Registry {
	if pub == nil {
		pub = PublisherFunc(func(Event) {})
	}
	r := &Registry{
		rooms:       make(map[string]*Room),
		members:     make(map[string]string),
		pub:         pub,
		now:         time.Now,
		coin:        secureCoin,
		idGen:       codeGen,
		turnTimeout: match.DefaultTurnTimeout,
		chatLimit:   100,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// emitter stamps events with the room id and its current audience.
func (reg *Registry) emitter(r *Room) func(Event) {
	return func(ev Event) {
		ev.RoomID = r.id
		if ev.Kind != EventListUpsert && ev.Kind != EventListRemove {
			ev.Audience = r.audience()
		}
		reg.pub.Publish(ev)
	}
}

func (reg *Registry) emitSnapshot(r *Room) {
	v := r.view()
	reg.emitter(r)(Event{Kind: EventSnapshot, View: &v})
}

func (reg *Registry) emitListed(r *Room) {
	if r.visibility != VisibilityPublic {
		return
	}
	s := r.summary()
	reg.pub.Publish(Event{Kind: EventListUpsert, RoomID: r.id, Summary: &s})
}

// Open creates a room and seats m as its first player in one step.
func (reg *Registry) Open(m Member, name, password string, vis Visibility) (View, error) {
	if strings.TrimSpace(name) == "" {
		name = m.Nickname + "'s room"
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.members[m.SessionID]; ok {
		return View{}, gameerr.ErrAlreadyInRoom
	}
	r, err := reg.createLocked(m.SessionID, name, password, vis)
	if err != nil {
		return View{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seat(m, r.createdAt, reg.coin, reg.emitter(r))
	reg.members[m.SessionID] = r.id
	reg.emitSnapshot(r)
	reg.emitListed(r)
	return r.view(), nil
}

func (reg *Registry) createLocked(creator, name, password string, vis Visibility) (*Room, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxRoomNameRunes {
		return nil, gameerr.ErrInvalidRoomName.With("at most %d characters", maxRoomNameRunes)
	}
	if utf8.RuneCountInString(password) > maxPasswordRunes {
		return nil, gameerr.ErrInvalidPassword.With("at most %d characters", maxPasswordRunes)
	}
	id, err := reg.uniqueIDLocked()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Room " + id
	}
	r := &Room{
		id:         id,
		name:       name,
		password:   password,
		visibility: vis,
		createdAt:  reg.now(),
		creator:    creator,
		game:       match.New(reg.turnTimeout),
	}
	reg.rooms[id] = r
	reg.logger.Info("room_created",
		zap.String("room", id),
		zap.String("name", name),
		zap.String("visibility", string(vis)),
		zap.Bool("password", password != ""),
	)
	return r, nil
}

func (reg *Registry) uniqueIDLocked() (string, error) {
	for i := 0; i < 8; i++ {
		id, err := reg.idGen()
		if err != nil {
			return "", err
		}
		if _, taken := reg.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", errors.New("room id space exhausted")
}

// Join admits m as a player when a seat is free, otherwise as a spectator.
func (reg *Registry) Join(m Member, roomID, password string) (Role, View, error) {
	roomID = strings.ToUpper(strings.TrimSpace(roomID))

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.members[m.SessionID]; ok {
		return "", View{}, gameerr.ErrAlreadyInRoom
	}
	r, ok := reg.rooms[roomID]
	if !ok {
		return "", View{}, gameerr.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.password != "" && r.password != password {
		return "", View{}, gameerr.ErrBadPassword
	}
	now := reg.now()
	emit := reg.emitter(r)
	role := RoleSpectator
	if len(r.players) < MaxPlayers {
		role = RolePlayer
		r.seat(m, now, reg.coin, emit)
	} else {
		r.spectators = append(r.spectators, &Spectator{SessionID: m.SessionID, Nickname: m.Nickname, JoinedAt: now})
	}
	reg.members[m.SessionID] = roomID
	reg.logger.Info("room_joined",
		zap.String("room", roomID),
		zap.String("nickname", m.Nickname),
		zap.String("role", string(role)),
	)
	reg.emitSnapshot(r)
	reg.emitListed(r)
	return role, r.view(), nil
}

// Leave removes sessionID from its room. It reports false when the session
// was not in any room, which makes repeated calls no-ops.
func (reg *Registry) Leave(sessionID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	roomID, ok := reg.members[sessionID]
	if !ok {
		return false
	}
	delete(reg.members, sessionID)
	r, ok := reg.rooms[roomID]
	if !ok {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	emit := reg.emitter(r)
	var nickname string
	if idx := r.playerIndex(sessionID); idx >= 0 {
		nickname = r.unseat(idx, reg.now(), emit).Nickname
	} else if idx := r.spectatorIndex(sessionID); idx >= 0 {
		nickname = r.spectators[idx].Nickname
		r.spectators = append(r.spectators[:idx], r.spectators[idx+1:]...)
	}
	reg.logger.Info("room_left", zap.String("room", roomID), zap.String("nickname", nickname))

	if r.empty() {
		r.deleted = true
		delete(reg.rooms, roomID)
		reg.logger.Info("room_deleted", zap.String("room", roomID))
		if r.visibility == VisibilityPublic {
			reg.pub.Publish(Event{Kind: EventListRemove, RoomID: roomID})
		}
		return true
	}
	reg.emitSnapshot(r)
	reg.emitListed(r)
	return true
}

// lockMember resolves the caller's room and returns it locked.
func (reg *Registry) lockMember(sessionID string) (*Room, error) {
	reg.mu.Lock()
	roomID, ok := reg.members[sessionID]
	r := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok || r == nil {
		return nil, gameerr.ErrNotInRoom
	}
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return nil, gameerr.ErrNotInRoom
	}
	return r, nil
}

// Promote seats a spectator in a free player slot.
func (reg *Registry) Promote(sessionID string) (View, error) {
	r, err := reg.lockMember(sessionID)
	if err != nil {
		return View{}, err
	}
	defer r.mu.Unlock()
	idx := r.spectatorIndex(sessionID)
	if idx < 0 {
		return View{}, gameerr.ErrNotSpectator
	}
	if len(r.players) >= MaxPlayers {
		return View{}, gameerr.ErrRoomFull
	}
	s := r.spectators[idx]
	r.spectators = append(r.spectators[:idx], r.spectators[idx+1:]...)
	r.seat(Member{SessionID: s.SessionID, Nickname: s.Nickname}, reg.now(), reg.coin, reg.emitter(r))
	reg.logger.Info("spectator_promoted", zap.String("room", r.id), zap.String("nickname", s.Nickname))
	reg.emitSnapshot(r)
	reg.emitListed(r)
	return r.view(), nil
}

// Spectate moves a player to the spectator list. A live round is aborted.
func (reg *Registry) Spectate(sessionID string) (View, error) {
	r, err := reg.lockMember(sessionID)
	if err != nil {
		return View{}, err
	}
	defer r.mu.Unlock()
	idx := r.playerIndex(sessionID)
	if idx < 0 {
		return View{}, gameerr.ErrNotAPlayer
	}
	now := reg.now()
	p := r.unseat(idx, now, reg.emitter(r))
	r.spectators = append(r.spectators, &Spectator{SessionID: p.SessionID, Nickname: p.Nickname, JoinedAt: now})
	reg.logger.Info("player_stepped_down", zap.String("room", r.id), zap.String("nickname", p.Nickname))
	reg.emitSnapshot(r)
	reg.emitListed(r)
	return r.view(), nil
}

// VoteRematch records the caller's consent; the second vote restarts play.
func (reg *Registry) VoteRematch(sessionID string) (bool, error) {
	r, err := reg.lockMember(sessionID)
	if err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	idx := r.playerIndex(sessionID)
	if idx < 0 {
		return false, gameerr.ErrNotAPlayer
	}
	if r.game.Status() != match.StatusEnded {
		return false, gameerr.ErrNotEnded
	}
	r.players[idx].WantsRematch = true
	restarted := len(r.players) == MaxPlayers && r.players[0].WantsRematch && r.players[1].WantsRematch
	if restarted {
		r.start(reg.now(), reg.coin, reg.emitter(r))
		reg.logger.Info("rematch_started", zap.String("room", r.id), zap.Int("round", r.game.Round()))
	}
	reg.emitSnapshot(r)
	if restarted {
		reg.emitListed(r)
	}
	return restarted, nil
}

// Move applies a placement for the caller.
func (reg *Registry) Move(sessionID string, row, col int) (match.MoveResult, error) {
	r, err := reg.lockMember(sessionID)
	if err != nil {
		return match.MoveResult{}, err
	}
	defer r.mu.Unlock()
	if r.playerIndex(sessionID) < 0 {
		return match.MoveResult{}, gameerr.ErrNotAPlayer
	}
	res, err := r.game.Move(sessionID, row, col, reg.now())
	if err != nil {
		return match.MoveResult{}, translateMoveErr(err)
	}
	emit := reg.emitter(r)
	emit(Event{Kind: EventMoveApplied, Move: &res})
	if res.Ended {
		reg.logger.Info("match_ended",
			zap.String("room", r.id),
			zap.String("reason", string(res.Reason)),
			zap.String("winner", res.Winner.String()),
			zap.Int("moves", len(r.game.Moves())),
		)
		r.emitEnded(res.Winner, emit)
		reg.emitListed(r)
	}
	return res, nil
}

func translateMoveErr(err error) error {
	switch {
	case errors.Is(err, board.ErrOutOfBounds):
		return gameerr.ErrOutOfBounds
	case errors.Is(err, board.ErrCellOccupied):
		return gameerr.ErrCellOccupied
	case errors.Is(err, match.ErrNotPlaying):
		return gameerr.ErrNotPlaying
	case errors.Is(err, match.ErrNotYourTurn):
		return gameerr.ErrNotYourTurn
	case errors.Is(err, match.ErrNotAPlayer):
		return gameerr.ErrNotAPlayer
	default:
		return err
	}
}

// Chat appends a message to the caller's room and broadcasts it.
func (reg *Registry) Chat(sessionID, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, gameerr.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxChatRunes {
		return ChatMessage{}, gameerr.ErrMessageTooLong.With("at most %d characters", maxChatRunes)
	}
	r, err := reg.lockMember(sessionID)
	if err != nil {
		return ChatMessage{}, err
	}
	defer r.mu.Unlock()
	var nickname string
	if idx := r.playerIndex(sessionID); idx >= 0 {
		nickname = r.players[idx].Nickname
	} else if idx := r.spectatorIndex(sessionID); idx >= 0 {
		nickname = r.spectators[idx].Nickname
	}
	msg := ChatMessage{ID: uuid.NewString(), Nickname: nickname, Text: text, At: reg.now()}
	r.appendChat(msg, reg.chatLimit)
	reg.emitter(r)(Event{Kind: EventChat, Chat: &msg})
	return msg, nil
}

// Sweep applies the turn timeout to every room whose deadline has elapsed.
// Each room is examined under its own lock, so a concurrent move and its
// timeout resolve in lock order.
func (reg *Registry) Sweep() int {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	n := 0
	for _, r := range rooms {
		r.mu.Lock()
		if !r.deleted {
			if res, ok := r.game.Expire(reg.now()); ok {
				n++
				reg.logger.Info("turn_timeout",
					zap.String("room", r.id),
					zap.String("side", res.TimedOut.String()),
					zap.String("nickname", res.Nickname),
				)
				reg.emitter(r)(Event{Kind: EventTimeout, Timeout: &res})
			}
		}
		r.mu.Unlock()
	}
	return n
}

// Find returns a snapshot of the room.
func (reg *Registry) Find(roomID string) (View, bool) {
	reg.mu.Lock()
	r, ok := reg.rooms[strings.ToUpper(strings.TrimSpace(roomID))]
	reg.mu.Unlock()
	if !ok {
		return View{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return View{}, false
	}
	return r.view(), true
}

// List returns room projections ordered by creation time.
func (reg *Registry) List(publicOnly bool) []Summary {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	type row struct {
		s  Summary
		at time.Time
	}
	rows := make([]row, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.deleted && (!publicOnly || r.visibility == VisibilityPublic) {
			rows = append(rows, row{s: r.summary(), at: r.createdAt})
		}
		r.mu.Unlock()
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].at.Equal(rows[j].at) {
			return rows[i].s.ID < rows[j].s.ID
		}
		return rows[i].at.Before(rows[j].at)
	})
	out := make([]Summary, len(rows))
	for i := range rows {
		out[i] = rows[i].s
	}
	return out
}

// RoomOf returns the room id sessionID belongs to.
func (reg *Registry) RoomOf(sessionID string) (string, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id, ok := reg.members[sessionID]
	return id, ok
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// codeGen returns 8 upper-case alphanumerics.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}

func secureCoin() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n == nil {
		return time.Now().UnixNano()%2 == 0
	}
	return n.Int64() == 0
}
