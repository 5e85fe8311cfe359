package gamedto

// Session is the wire shape of one game session. Board cells are "" (empty),
// "R" (player1) or "Y" (player2); row 0 is the top of the grid.
type Session struct {
	ID            string     `json:"id"`
	CreatedAt     int64      `json:"created_at"` // unix ms
	UpdatedAt     int64      `json:"updated_at"` // unix ms
	Status        string     `json:"status"`
	Mode          string     `json:"mode"`
	Board         [][]string `json:"board"`
	Player1       string     `json:"player1"`
	Player2       string     `json:"player2,omitempty"`
	Player1Name   string     `json:"player1_name,omitempty"`
	Player2Name   string     `json:"player2_name,omitempty"`
	CurrentPlayer string     `json:"current_player"`

	Winner       string  `json:"winner,omitempty"`
	WinningCells [][]int `json:"winning_cells,omitempty"` // [row, col] pairs

	RematchGameID  string `json:"rematch_game_id,omitempty"`
	PreviousGameID string `json:"previous_game_id,omitempty"`

	// RemainingWaitMs is how long a waiting session stays joinable; zero
	// otherwise.
	RemainingWaitMs int64 `json:"remaining_wait_ms,omitempty"`
}

// Move is the wire shape of one move record.
type Move struct {
	GameID     string `json:"game_id"`
	Player     string `json:"player"`
	Column     int    `json:"column"`
	MoveNumber int    `json:"move_number"`
	CreatedAt  int64  `json:"created_at"` // unix ms
}

// Profile is the wire shape of a player profile.
type Profile struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}
