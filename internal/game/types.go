package game

import (
	"time"

	"github.com/kapu/fourline-go/internal/board"
)

// Status represents a session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Mode governs matchmaking visibility.
type Mode string

const (
	ModeFriend Mode = "friend"
	ModeAuto   Mode = "auto"
)

// Session is the persisted state of one connect-four game. It is stored as a
// single JSON document and only ever rewritten whole, inside one optimistic
// transaction on its key.
type Session struct {
	ID            string      `json:"id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Status        Status      `json:"status"`
	Mode          Mode        `json:"mode"`
	Board         board.Board `json:"board"`
	Player1       string      `json:"player1"`
	Player2       string      `json:"player2,omitempty"`
	Player1Name   string      `json:"player1_name,omitempty"`
	Player2Name   string      `json:"player2_name,omitempty"`
	CurrentPlayer string      `json:"current_player"`

	Winner       board.Token   `json:"winner,omitempty"`
	WinningCells []board.Coord `json:"winning_cells,omitempty"`

	RematchP1At    *time.Time `json:"rematch_p1_at,omitempty"`
	RematchP2At    *time.Time `json:"rematch_p2_at,omitempty"`
	RematchGameID  string     `json:"rematch_game_id,omitempty"`
	PreviousGameID string     `json:"previous_game_id,omitempty"`
}

// HasSeat reports whether player occupies either seat.
func (s *Session) HasSeat(player string) bool {
	return player != "" && (s.Player1 == player || s.Player2 == player)
}

// TokenOf returns the board token bound to player's seat, or TokenNone.
func (s *Session) TokenOf(player string) board.Token {
	switch player {
	case s.Player1:
		return board.TokenRed
	case s.Player2:
		if player != "" {
			return board.TokenYellow
		}
	}
	return board.TokenNone
}

// PlayerOf returns the seat occupant bound to token, or "".
func (s *Session) PlayerOf(token board.Token) string {
	switch token {
	case board.TokenRed:
		return s.Player1
	case board.TokenYellow:
		return s.Player2
	}
	return ""
}

// Opponent returns the other seat's occupant, falling back to player1 while
// the second seat is empty.
func (s *Session) Opponent(player string) string {
	if player == s.Player1 && s.Player2 != "" {
		return s.Player2
	}
	return s.Player1
}

// Move is one append-only child record of a session. Ordering by MoveNumber
// reconstructs the board deterministically.
type Move struct {
	GameID     string    `json:"game_id"`
	Player     string    `json:"player"`
	Column     int       `json:"column"`
	MoveNumber int       `json:"move_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// JoinResult distinguishes a fresh join from the idempotent re-join of a
// player who already holds a seat. AlreadyIn is not an error.
type JoinResult struct {
	Joined    bool
	AlreadyIn bool
}

// AutoMatchResult reports the session the caller ended up in. Matched is
// false when no partner was found and a fresh waiting session was created;
// callers treat that as "still waiting", not a failure.
type AutoMatchResult struct {
	GameID  string
	Matched bool
}

// RematchResult carries the spawned rematch id once both seats have live
// requests. Until then Waiting is true.
type RematchResult struct {
	GameID  string
	Waiting bool
}

// Errors surfaced by the manager. ErrColumnFull comes from the board package.
var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrNotFound        = errf("game not found")
	ErrExpired         = errf("game expired")
	ErrFull            = errf("game already has two players")
	ErrNotActive       = errf("game not active")
	ErrNotYourTurn     = errf("not your turn")
	ErrInvalidColumn   = errf("column out of range")
	ErrNotParticipant  = errf("player not in game")
	ErrGameNotFinished = errf("game not finished")
	ErrMissingOpponent = errf("game never had a second player")
)

var ErrColumnFull = board.ErrColumnFull

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
