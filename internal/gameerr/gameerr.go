package gameerr

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected command for the caller.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindPersistence Kind = "persistence"
)

// Error carries a stable Code used as a message catalog key.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Code + ": " + e.Detail
	}
	return e.Code
}

// Is matches on Kind and Code so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newErr(kind Kind, code string) *Error { return &Error{Kind: kind, Code: code} }

// With returns a copy of e carrying detail.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrMalformed       = newErr(KindValidation, "malformed_command")
	ErrUnknownCommand  = newErr(KindValidation, "unknown_command")
	ErrInvalidNickname = newErr(KindValidation, "invalid_nickname")
	ErrInvalidPassword = newErr(KindValidation, "invalid_password")
	ErrInvalidRoomName = newErr(KindValidation, "invalid_room_name")
	ErrOutOfBounds     = newErr(KindValidation, "out_of_bounds")
	ErrEmptyMessage    = newErr(KindValidation, "empty_message")
	ErrMessageTooLong  = newErr(KindValidation, "message_too_long")
	ErrNotAuthorized   = newErr(KindValidation, "not_authenticated")
	ErrAccountRequired = newErr(KindValidation, "account_required")

	ErrRoomNotFound = newErr(KindNotFound, "room_not_found")
	ErrNotInRoom    = newErr(KindNotFound, "not_in_room")

	ErrBadPassword      = newErr(KindConflict, "bad_password")
	ErrRoomFull         = newErr(KindConflict, "room_full")
	ErrAlreadyInRoom    = newErr(KindConflict, "already_in_room")
	ErrAlreadyJoined    = newErr(KindConflict, "already_authenticated")
	ErrNicknameInUse    = newErr(KindConflict, "nickname_in_use")
	ErrNicknameTaken    = newErr(KindConflict, "nickname_registered")
	ErrWrongCredentials = newErr(KindConflict, "wrong_credentials")
	ErrNotPlaying       = newErr(KindConflict, "game_not_playing")
	ErrNotAPlayer       = newErr(KindConflict, "not_a_player")
	ErrNotYourTurn      = newErr(KindConflict, "not_your_turn")
	ErrCellOccupied     = newErr(KindConflict, "cell_occupied")
	ErrNotEnded         = newErr(KindConflict, "game_not_ended")
	ErrNotSpectator     = newErr(KindConflict, "not_a_spectator")

	ErrPersistence = newErr(KindPersistence, "persistence_failure")
)

// As extracts the *Error in err's chain, or nil.
func As(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}

// KindOf reports the classification of err; unknown errors are conflicts.
func KindOf(err error) Kind {
	if ge := As(err); ge != nil {
		return ge.Kind
	}
	return KindConflict
}
