package omokdto

import "time"

type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"hasPassword"`
	Visibility  string `json:"visibility"`
	Players     int    `json:"players"`
	Spectators  int    `json:"spectators"`
	Status      string `json:"status"`
}

type PlayerInfo struct {
	Nickname     string `json:"nickname"`
	Side         string `json:"side,omitempty"`
	WantsRematch bool   `json:"wantsRematch,omitempty"`
}

type MoveInfo struct {
	Row      int       `json:"row"`
	Col      int       `json:"col"`
	Side     string    `json:"side"`
	Nickname string    `json:"nickname"`
	At       time.Time `json:"at"`
}

type ChatInfo struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId,omitempty"`
	Nickname string    `json:"nickname"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

type AuthOK struct {
	SessionID  string        `json:"sessionId"`
	Nickname   string        `json:"nickname"`
	Registered bool          `json:"registered"`
	Message    string        `json:"message,omitempty"`
	Rooms      []RoomSummary `json:"rooms"`
}

type AuthRegistered struct {
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
}

// RoomSnapshot is the full state of one room. Board cells are 0 empty, 1 black, 2 white.
type RoomSnapshot struct {
	RoomSummary
	CreatedAt  time.Time    `json:"createdAt"`
	PlayerList []PlayerInfo `json:"playerList"`
	Watchers   []string     `json:"watchers"`
	Board      [][]int      `json:"board"`
	Moves      []MoveInfo   `json:"moves"`
	ToMove     string       `json:"toMove,omitempty"`
	Deadline   *time.Time   `json:"deadline,omitempty"`
	Winner     string       `json:"winner,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Round      int          `json:"round"`
	Chat       []ChatInfo   `json:"chat"`
}

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

// RoomsList is either the full public list or a delta of upserts and removals.
type RoomsList struct {
	Full    bool          `json:"full"`
	Rooms   []RoomSummary `json:"rooms"`
	Removed []string      `json:"removed,omitempty"`
}

type MoveApplied struct {
	RoomID   string     `json:"roomId"`
	Move     MoveInfo   `json:"move"`
	Next     string     `json:"next,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Ended    bool       `json:"ended"`
}

type GameStarted struct {
	RoomID   string    `json:"roomId"`
	Round    int       `json:"round"`
	Black    string    `json:"black"`
	White    string    `json:"white"`
	Deadline time.Time `json:"deadline"`
}

type GameEnded struct {
	RoomID         string `json:"roomId"`
	Winner         string `json:"winner"`
	WinnerNickname string `json:"winnerNickname,omitempty"`
	Reason         string `json:"reason"`
	MatchID        string `json:"matchId,omitempty"`
}

type GameTimeout struct {
	RoomID   string    `json:"roomId"`
	Nickname string    `json:"nickname"`
	Next     string    `json:"next"`
	Deadline time.Time `json:"deadline"`
}

type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Rooms         int `json:"rooms"`
	Accounts      int `json:"accounts"`
}
