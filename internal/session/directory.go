package session

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/park285/omok-server/internal/gameerr"
)

const maxNicknameRunes = 20

// Sink is the outbound side of a connection. Deliver must not block; it
// reports false when the frame could not be queued. Close reports whether
// this call closed the sink; it is false once the sink is already closing.
type Sink interface {
	Deliver(frame any) bool
	Close(reason string) bool
}

// Session is a detached copy of a directory entry.
type Session struct {
	ID          string
	Nickname    string
	RoomID      string
	ConnectedAt time.Time
	sink        Sink
}

// Authenticated reports whether the session has claimed a nickname.
func (s Session) Authenticated() bool { return s.Nickname != "" }

// Directory maps live connections to nicknames and their current room.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byNick   map[string]string
	rooms    Leaver
	presence Presence
	now      func() time.Time
}

// Leaver removes a session from whatever room holds it. Repeated calls for
// the same session must be no-ops.
type Leaver interface {
	Leave(sessionID string) bool
}

// Presence mirrors authenticated sessions to an external store.
type Presence interface {
	Online(sessionID, nickname string)
	Offline(sessionID string)
}

func NewDirectory(rooms Leaver, presence Presence) *Directory {
	return &Directory{
		sessions: make(map[string]*Session),
		byNick:   make(map[string]string),
		rooms:    rooms,
		presence: presence,
		now:      time.Now,
	}
}

// Connect registers an unauthenticated session.
func (d *Directory) Connect(id string, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[id] = &Session{ID: id, ConnectedAt: d.now(), sink: sink}
}

// ValidateNickname enforces the guest nickname policy.
func ValidateNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", gameerr.ErrInvalidNickname.With("nickname is required")
	}
	if utf8.RuneCountInString(nickname) > maxNicknameRunes {
		return "", gameerr.ErrInvalidNickname.With("at most %d characters", maxNicknameRunes)
	}
	for _, r := range nickname {
		if unicode.IsControl(r) {
			return "", gameerr.ErrInvalidNickname.With("control characters are not allowed")
		}
	}
	return nickname, nil
}

// Join claims nickname for id. A nickname held by another live session is
// rejected.
func (d *Directory) Join(id, nickname string) (Session, error) {
	nickname, err := ValidateNickname(nickname)
	if err != nil {
		return Session{}, err
	}
	key := strings.ToLower(nickname)

	d.mu.Lock()
	e, ok := d.sessions[id]
	if !ok {
		d.mu.Unlock()
		return Session{}, gameerr.ErrNotAuthorized
	}
	if e.Nickname != "" {
		d.mu.Unlock()
		return Session{}, gameerr.ErrAlreadyJoined
	}
	if holder, taken := d.byNick[key]; taken && holder != id {
		d.mu.Unlock()
		return Session{}, gameerr.ErrNicknameInUse
	}
	e.Nickname = nickname
	d.byNick[key] = id
	out := *e
	d.mu.Unlock()

	if d.presence != nil {
		d.presence.Online(id, nickname)
	}
	return out, nil
}

// Lookup returns a copy of the session.
func (d *Directory) Lookup(id string) (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *e, true
}

// SetRoom records the room back-reference. It never changes membership.
func (d *Directory) SetRoom(id, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.sessions[id]; ok {
		e.RoomID = roomID
	}
}

// Disconnect leaves the session's room first, then forgets the session. It
// reports false if the session was unknown.
func (d *Directory) Disconnect(id string) (Session, bool) {
	if d.rooms != nil {
		d.rooms.Leave(id)
	}
	d.mu.Lock()
	e, ok := d.sessions[id]
	if !ok {
		d.mu.Unlock()
		return Session{}, false
	}
	delete(d.sessions, id)
	if e.Nickname != "" {
		key := strings.ToLower(e.Nickname)
		if d.byNick[key] == id {
			delete(d.byNick, key)
		}
	}
	out := *e
	d.mu.Unlock()

	if d.presence != nil && out.Nickname != "" {
		d.presence.Offline(id)
	}
	return out, true
}

// Deliver queues frame for one session.
func (d *Directory) Deliver(id string, frame any) bool {
	d.mu.RLock()
	e, ok := d.sessions[id]
	var sink Sink
	if ok {
		sink = e.sink
	}
	d.mu.RUnlock()
	if sink == nil {
		return false
	}
	return sink.Deliver(frame)
}

// Broadcast queues frame for every authenticated session and returns the ids
// whose queue rejected it.
func (d *Directory) Broadcast(frame any) []string {
	d.mu.RLock()
	targets := make([]*Session, 0, len(d.sessions))
	for _, e := range d.sessions {
		if e.Nickname != "" && e.sink != nil {
			targets = append(targets, e)
		}
	}
	d.mu.RUnlock()

	var failed []string
	for _, e := range targets {
		if !e.sink.Deliver(frame) {
			failed = append(failed, e.ID)
		}
	}
	return failed
}

// Count returns total and authenticated session counts.
func (d *Directory) Count() (total, authenticated int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.sessions {
		total++
		if e.Nickname != "" {
			authenticated++
		}
	}
	return total, authenticated
}

// ForEach visits a snapshot of all sessions.
func (d *Directory) ForEach(fn func(Session)) {
	d.mu.RLock()
	list := make([]Session, 0, len(d.sessions))
	for _, e := range d.sessions {
		list = append(list, *e)
	}
	d.mu.RUnlock()
	for _, s := range list {
		fn(s)
	}
}

// Kick closes the session's sink and reports whether this call closed it.
// The transport observes the close and calls Disconnect, so Kick is safe to
// call while a room is locked.
func (d *Directory) Kick(id, reason string) bool {
	d.mu.RLock()
	e, ok := d.sessions[id]
	var sink Sink
	if ok {
		sink = e.sink
	}
	d.mu.RUnlock()
	if sink == nil {
		return false
	}
	return sink.Close(reason)
}
