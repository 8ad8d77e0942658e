package omokdto

type JoinRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password,omitempty"`
}

type RegisterRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

// MoveRequest uses pointers so a missing coordinate is distinguishable from 0.
type MoveRequest struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

type ChatRequest struct {
	Text string `json:"text"`
}
