package board

import "errors"

const (
	Rows = 6
	Cols = 7
)

// Token is the in-board marker for a seat. Player1 drops "R", player2 "Y".
type Token string

const (
	TokenNone   Token = ""
	TokenRed    Token = "R"
	TokenYellow Token = "Y"
)

// Other returns the opposing token.
func (t Token) Other() Token {
	if t == TokenRed {
		return TokenYellow
	}
	return TokenRed
}

// Board is a fixed 6x7 grid, row 0 at the top. Value semantics: assigning a
// Board copies it, which gives ApplyMove its copy-on-write behavior for free.
type Board [Rows][Cols]Token

// Coord addresses a single cell.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

var ErrColumnFull = errors.New("column is full")

// ApplyMove drops token into the lowest empty cell of column and returns the
// resulting board plus the row the token landed in. The input board is left
// untouched. Column range checking is the caller's concern.
func ApplyMove(b Board, column int, token Token) (Board, int, error) {
	for r := Rows - 1; r >= 0; r-- {
		if b[r][column] == TokenNone {
			b[r][column] = token
			return b, r, nil
		}
	}
	return b, -1, ErrColumnFull
}

// Directions scanned per origin cell. Forward-extending only, so each maximal
// run is found exactly once: right, down, down-right, down-left.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// FindWinner scans the full board for four contiguous same-token cells and
// returns the token plus the ordered run. Cells are visited in row-major
// order and directions in the fixed order above, so the result is
// deterministic when more than one line exists.
func FindWinner(b Board) (Token, []Coord, bool) {
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			token := b[r][c]
			if token == TokenNone {
				continue
			}
			for _, d := range directions {
				cells := []Coord{{Row: r, Col: c}}
				nr, nc := r+d[0], c+d[1]
				for nr >= 0 && nr < Rows && nc >= 0 && nc < Cols && b[nr][nc] == token {
					cells = append(cells, Coord{Row: nr, Col: nc})
					if len(cells) == 4 {
						return token, cells, true
					}
					nr += d[0]
					nc += d[1]
				}
			}
		}
	}
	return TokenNone, nil, false
}

// TopRowFull reports whether the topmost row has no empty cell, which marks a
// draw when no winner exists.
func TopRowFull(b Board) bool {
	for c := 0; c < Cols; c++ {
		if b[0][c] == TokenNone {
			return false
		}
	}
	return true
}
