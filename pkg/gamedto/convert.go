package gamedto

import (
	"time"

	"github.com/kapu/fourline-go/internal/board"
	"github.com/kapu/fourline-go/internal/game"
)

// FromSession maps the stored session onto its wire shape.
func FromSession(g *game.Session, remaining time.Duration) *Session {
	grid := make([][]string, board.Rows)
	for r := 0; r < board.Rows; r++ {
		row := make([]string, board.Cols)
		for c := 0; c < board.Cols; c++ {
			row[c] = string(g.Board[r][c])
		}
		grid[r] = row
	}
	var cells [][]int
	for _, wc := range g.WinningCells {
		cells = append(cells, []int{wc.Row, wc.Col})
	}
	return &Session{
		ID:             g.ID,
		CreatedAt:      g.CreatedAt.UnixMilli(),
		UpdatedAt:      g.UpdatedAt.UnixMilli(),
		Status:         string(g.Status),
		Mode:           string(g.Mode),
		Board:          grid,
		Player1:        g.Player1,
		Player2:        g.Player2,
		Player1Name:    g.Player1Name,
		Player2Name:    g.Player2Name,
		CurrentPlayer:  g.CurrentPlayer,
		Winner:         string(g.Winner),
		WinningCells:   cells,
		RematchGameID:  g.RematchGameID,
		PreviousGameID: g.PreviousGameID,
		RemainingWaitMs: func() int64 {
			if remaining > 0 {
				return remaining.Milliseconds()
			}
			return 0
		}(),
	}
}

// FromMove maps one move record onto its wire shape.
func FromMove(mv *game.Move) *Move {
	return &Move{
		GameID:     mv.GameID,
		Player:     mv.Player,
		Column:     mv.Column,
		MoveNumber: mv.MoveNumber,
		CreatedAt:  mv.CreatedAt.UnixMilli(),
	}
}
