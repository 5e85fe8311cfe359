package game

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store owns the Redis document and index layout for sessions and moves.
//
//	game:<id>            JSON session document
//	game:<id>:moves      append-only list of JSON move records
//	games:index:created  zset of ids scored by createdAt ms
//	games:index:player:<p>   set of ids where p occupies a seat
//	games:index:waiting      zset of waiting ids scored by createdAt ms
//	games:index:waiting:auto zset subset of waiting ids in auto mode (the pool)
//
// Write helpers take a Pipeliner so mutations compose into the caller's
// optimistic transaction and commit atomically with the document patch.
type Store struct {
	rdb       *redis.Client
	retention time.Duration // 0 keeps documents forever
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// SetRetention applies a storage-level TTL to session documents and their
// move lists. Index entries are left to the sweep and to dangling-id
// tolerance on the read paths.
func (s *Store) SetRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

func (s *Store) gameKey(id string) string   { return "game:" + strings.TrimSpace(id) }
func (s *Store) movesKey(id string) string  { return s.gameKey(id) + ":moves" }
func (s *Store) keyCreated() string         { return "games:index:created" }
func (s *Store) keyPlayer(p string) string  { return "games:index:player:" + strings.TrimSpace(p) }
func (s *Store) keyWaiting() string         { return "games:index:waiting" }
func (s *Store) keyAutoPool() string        { return "games:index:waiting:auto" }

// loadSession reads one session document. Missing keys yield (nil, nil).
// c may be the client or a transaction connection.
func (s *Store) loadSession(ctx context.Context, c redis.Cmdable, id string) (*Session, error) {
	raw, err := c.Get(ctx, s.gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g Session
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) writeSession(ctx context.Context, pipe redis.Pipeliner, g *Session) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if g.Status == StatusFinished {
		ttl = s.retention // 0 keeps the document forever
	}
	pipe.Set(ctx, s.gameKey(g.ID), raw, ttl)
	pipe.ZAdd(ctx, s.keyCreated(), redis.Z{Score: float64(g.CreatedAt.UnixMilli()), Member: g.ID})
	pipe.SAdd(ctx, s.keyPlayer(g.Player1), g.ID)
	if g.Player2 != "" {
		pipe.SAdd(ctx, s.keyPlayer(g.Player2), g.ID)
	}
	if g.Status == StatusWaiting {
		pipe.ZAdd(ctx, s.keyWaiting(), redis.Z{Score: float64(g.CreatedAt.UnixMilli()), Member: g.ID})
		if g.Mode == ModeAuto {
			pipe.ZAdd(ctx, s.keyAutoPool(), redis.Z{Score: float64(g.CreatedAt.UnixMilli()), Member: g.ID})
		}
	} else {
		pipe.ZRem(ctx, s.keyWaiting(), g.ID)
		pipe.ZRem(ctx, s.keyAutoPool(), g.ID)
	}
	if ttl > 0 {
		pipe.Expire(ctx, s.movesKey(g.ID), ttl)
	}
	return nil
}

func (s *Store) removeSession(ctx context.Context, pipe redis.Pipeliner, g *Session) {
	pipe.Del(ctx, s.gameKey(g.ID), s.movesKey(g.ID))
	pipe.ZRem(ctx, s.keyCreated(), g.ID)
	pipe.ZRem(ctx, s.keyWaiting(), g.ID)
	pipe.ZRem(ctx, s.keyAutoPool(), g.ID)
	pipe.SRem(ctx, s.keyPlayer(g.Player1), g.ID)
	if g.Player2 != "" {
		pipe.SRem(ctx, s.keyPlayer(g.Player2), g.ID)
	}
}

func (s *Store) appendMove(ctx context.Context, pipe redis.Pipeliner, mv *Move) error {
	raw, err := json.Marshal(mv)
	if err != nil {
		return err
	}
	pipe.RPush(ctx, s.movesKey(mv.GameID), raw)
	return nil
}

// moveCount reads the move list length on the transaction connection so the
// next move number is consistent with the watched document.
func (s *Store) moveCount(ctx context.Context, c redis.Cmdable, gameID string) (int64, error) {
	n, err := c.LLen(ctx, s.movesKey(gameID)).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) movesForGame(ctx context.Context, gameID string, limit int) ([]*Move, error) {
	raws, err := s.rdb.LRange(ctx, s.movesKey(gameID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Move, 0, len(raws))
	for _, raw := range raws {
		var mv Move
		if err := json.Unmarshal([]byte(raw), &mv); err != nil {
			return nil, err
		}
		out = append(out, &mv)
	}
	return out, nil
}

func (s *Store) recentIDs(ctx context.Context, n int64) ([]string, error) {
	return s.rdb.ZRevRange(ctx, s.keyCreated(), 0, n-1).Result()
}

func (s *Store) oldestWaitingIDs(ctx context.Context, n int64) ([]string, error) {
	return s.rdb.ZRange(ctx, s.keyWaiting(), 0, n-1).Result()
}

func (s *Store) autoPoolIDs(ctx context.Context, n int64) ([]string, error) {
	return s.rdb.ZRange(ctx, s.keyAutoPool(), 0, n-1).Result()
}

func (s *Store) playerGameIDs(ctx context.Context, player string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyPlayer(player)).Result()
}
