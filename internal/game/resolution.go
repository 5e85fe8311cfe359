package game

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/fourline-go/internal/board"
	"github.com/kapu/fourline-go/internal/obslog"
)

// Play drops player's token into column, appends the move record and resolves
// the board: win, draw, or turn handover. The document patch and the move
// append commit in one transaction.
func (m *Manager) Play(ctx context.Context, gameID, player string, column int) error {
	gameID = strings.TrimSpace(gameID)
	player = strings.TrimSpace(player)
	if gameID == "" || player == "" {
		return ErrInvalidArgs
	}

	var played *Session
	err := m.updateGame(ctx, gameID, func(tx *redis.Tx, g *Session) error {
		if WaitingExpired(g, m.ttl, m.now()) {
			return m.dropExpired(ctx, tx, g)
		}
		if g.Status != StatusWaiting && g.Status != StatusActive {
			return ErrNotActive
		}
		if g.CurrentPlayer != player {
			return ErrNotYourTurn
		}
		if column < 0 || column >= board.Cols {
			return ErrInvalidColumn
		}
		next, _, err := board.ApplyMove(g.Board, column, g.TokenOf(player))
		if err != nil {
			return err // ErrColumnFull
		}

		count, err := m.store.moveCount(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		now := m.now()
		mv := &Move{
			GameID:     g.ID,
			Player:     player,
			Column:     column,
			MoveNumber: int(count) + 1,
			CreatedAt:  now,
		}

		g.Board = next
		g.UpdatedAt = now
		if g.Status == StatusWaiting {
			g.Status = StatusActive
		}
		if tok, cells, won := board.FindWinner(next); won {
			g.Status = StatusFinished
			g.Winner = tok
			g.WinningCells = cells
		} else if board.TopRowFull(next) {
			g.Status = StatusFinished // draw, winner stays empty
		} else {
			g.CurrentPlayer = g.Opponent(player)
		}

		pipe := tx.TxPipeline()
		if err := m.store.appendMove(ctx, pipe, mv); err != nil {
			return err
		}
		if err := m.store.writeSession(ctx, pipe, g); err != nil {
			return err
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		played = g
		return nil
	})
	if err != nil {
		return err
	}

	obslog.L().Info("game_move",
		zap.String("game_id", gameID),
		zap.String("player", player),
		zap.Int("column", column),
		zap.String("status", string(played.Status)),
		zap.String("winner", string(played.Winner)),
	)
	if played.Status == StatusFinished {
		method := "draw"
		if played.Winner != board.TokenNone {
			method = "connect"
		}
		m.persistIfFinal(ctx, played, method)
	}
	return nil
}

// Resign finishes an active game in favor of the other seat. Resigning before
// a second player joined finishes the game with no winner.
func (m *Manager) Resign(ctx context.Context, gameID, player string) error {
	gameID = strings.TrimSpace(gameID)
	player = strings.TrimSpace(player)
	if gameID == "" || player == "" {
		return ErrInvalidArgs
	}

	var resigned *Session
	err := m.updateGame(ctx, gameID, func(tx *redis.Tx, g *Session) error {
		if g.Status != StatusActive {
			return ErrNotActive
		}
		if !g.HasSeat(player) {
			return ErrNotParticipant
		}
		g.Status = StatusFinished
		if g.Player2 != "" {
			g.Winner = g.TokenOf(player).Other()
		}
		g.UpdatedAt = m.now()
		pipe := tx.TxPipeline()
		if err := m.store.writeSession(ctx, pipe, g); err != nil {
			return err
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		resigned = g
		return nil
	})
	if err != nil {
		return err
	}

	obslog.L().Info("game_resign",
		zap.String("game_id", gameID),
		zap.String("player", player),
		zap.String("winner", string(resigned.Winner)),
	)
	m.persistIfFinal(ctx, resigned, "resignation")
	return nil
}

// RequestRematch records the caller's rematch intent and spawns the follow-up
// session once both seats hold a live request. Requests older than the
// waiting TTL are treated as lapsed and must be re-issued. Idempotent once
// the rematch exists: every later call returns the same id.
func (m *Manager) RequestRematch(ctx context.Context, gameID, player string) (*RematchResult, error) {
	gameID = strings.TrimSpace(gameID)
	player = strings.TrimSpace(player)
	if gameID == "" || player == "" {
		return nil, ErrInvalidArgs
	}

	var res RematchResult
	err := m.updateGame(ctx, gameID, func(tx *redis.Tx, g *Session) error {
		if g.Status != StatusFinished {
			return ErrGameNotFinished
		}
		if g.Player2 == "" {
			return ErrMissingOpponent
		}
		if !g.HasSeat(player) {
			return ErrNotParticipant
		}
		if g.RematchGameID != "" {
			res = RematchResult{GameID: g.RematchGameID}
			return nil
		}

		now := m.now()
		if player == g.Player1 {
			g.RematchP1At = &now
		} else {
			g.RematchP2At = &now
		}
		live := func(t *time.Time) bool { return t != nil && now.Sub(*t) <= m.ttl }

		if !live(g.RematchP1At) || !live(g.RematchP2At) {
			g.UpdatedAt = now
			pipe := tx.TxPipeline()
			if err := m.store.writeSession(ctx, pipe, g); err != nil {
				return err
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			res = RematchResult{Waiting: true}
			return nil
		}

		next := m.spawnRematch(g, now)
		g.RematchGameID = next.ID
		g.UpdatedAt = now
		pipe := tx.TxPipeline()
		if err := m.store.writeSession(ctx, pipe, next); err != nil {
			return err
		}
		if err := m.store.writeSession(ctx, pipe, g); err != nil {
			return err
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		res = RematchResult{GameID: next.ID}
		obslog.L().Info("rematch_spawn",
			zap.String("game_id", g.ID),
			zap.String("rematch_id", next.ID),
			zap.String("starter", next.CurrentPlayer),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// spawnRematch builds the follow-up session: fresh board, same seats and
// names, mode inherited, already active since both players are known. The
// loser starts; after a draw, the seat not holding the turn at the finish
// starts.
func (m *Manager) spawnRematch(origin *Session, now time.Time) *Session {
	starter := origin.Opponent(origin.CurrentPlayer)
	if origin.Winner != board.TokenNone {
		starter = origin.PlayerOf(origin.Winner.Other())
	}
	return &Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         StatusActive,
		Mode:           origin.Mode,
		Player1:        origin.Player1,
		Player2:        origin.Player2,
		Player1Name:    origin.Player1Name,
		Player2Name:    origin.Player2Name,
		CurrentPlayer:  starter,
		PreviousGameID: origin.ID,
	}
}

// persistIfFinal archives a finished game when a repository is attached.
// Best-effort: archive failures are logged, never surfaced.
func (m *Manager) persistIfFinal(ctx context.Context, g *Session, method string) {
	if m.repo == nil || g == nil || g.Status != StatusFinished {
		return
	}
	moves, err := m.store.movesForGame(ctx, g.ID, maxMovesPerGame)
	if err != nil {
		obslog.L().Error("game_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	if err := m.repo.SaveResult(ctx, g, method, len(moves)); err != nil {
		obslog.L().Error("game_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	obslog.L().Info("game_archive", zap.String("game_id", g.ID), zap.String("method", method))
}
