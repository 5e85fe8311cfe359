package game

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/fourline-go/internal/board"
)

// Repository archives finished games into Postgres. The Redis documents stay
// the source of truth for live play; this table is the durable record.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one row per finished game, keyed by game id, so replayed
// archive attempts stay idempotent.
func (r *Repository) SaveResult(ctx context.Context, g *Session, method string, moveCount int) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}

	result := "draw"
	switch g.Winner {
	case board.TokenRed:
		result = "player1"
	case board.TokenYellow:
		result = "player2"
	default:
		if method == "resignation" && g.Player2 == "" {
			result = "abandoned"
		}
	}
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO fourline_games (
	    game_id, player1, player1_name, player2, player2_name,
	    mode, result, result_method, winner_token, move_count,
	    previous_game_id, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    player1=EXCLUDED.player1,
	    player1_name=EXCLUDED.player1_name,
	    player2=EXCLUDED.player2,
	    player2_name=EXCLUDED.player2_name,
	    mode=EXCLUDED.mode,
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    winner_token=EXCLUDED.winner_token,
	    move_count=EXCLUDED.move_count,
	    previous_game_id=EXCLUDED.previous_game_id,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID,
		g.Player1, g.Player1Name,
		g.Player2, g.Player2Name,
		string(g.Mode), result, strings.TrimSpace(method), string(g.Winner), moveCount,
		g.PreviousGameID, g.CreatedAt, g.UpdatedAt, duration,
	)
	return err
}
