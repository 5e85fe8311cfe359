package game

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/fourline-go/internal/obslog"
)

const (
	autoMatchScanLimit = 20
	listScanLimit      = 50
	listResultLimit    = 20
	cleanupScanLimit   = 500
	maxMovesPerGame    = 1000

	// bounded re-run of an optimistic transaction that lost its WATCH race;
	// emulates the serializable single-document transaction the protocol
	// assumes.
	maxTxAttempts = 3
)

// ProfileLookup resolves a player identifier to a display name. Best-effort
// denormalization only; lookups never fail a mutation.
type ProfileLookup interface {
	Username(ctx context.Context, playerID string) (string, error)
}

// Manager runs the session lifecycle, matchmaking, resolution and query
// surface against Redis. Every mutation is one optimistic transaction on the
// session key; queries read outside any transaction and never write.
type Manager struct {
	rdb      *redis.Client
	store    *Store
	repo     *Repository
	profiles ProfileLookup
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(redisURL string) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for game manager")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewManagerWithClient(rdb), nil
}

// NewManagerWithClient wires the manager onto an existing client, used when
// several components share one Redis connection.
func NewManagerWithClient(rdb *redis.Client) *Manager {
	return &Manager{
		rdb:   rdb,
		store: NewStore(rdb),
		ttl:   DefaultWaitingTTL,
		now:   time.Now,
	}
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// AttachRepository wires a database repository for archiving finished games.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

// AttachProfiles wires the username collaborator.
func (m *Manager) AttachProfiles(p ProfileLookup) {
	if m != nil {
		m.profiles = p
	}
}

// SetWaitingTTL overrides the waiting-session expiry window.
func (m *Manager) SetWaitingTTL(d time.Duration) {
	if d > 0 {
		m.ttl = d
	}
}

// SetRetention applies a storage-level TTL to finished documents, see Store.
func (m *Manager) SetRetention(d time.Duration) { m.store.SetRetention(d) }

// WaitingTTL reports the active expiry window.
func (m *Manager) WaitingTTL() time.Duration { return m.ttl }

// Create allocates a fresh waiting session owned by player. Mode defaults to
// friend.
func (m *Manager) Create(ctx context.Context, player string, mode Mode) (string, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return "", ErrInvalidArgs
	}
	switch mode {
	case "":
		mode = ModeFriend
	case ModeFriend, ModeAuto:
	default:
		return "", ErrInvalidArgs
	}

	g := m.newSession(ctx, player, mode)
	pipe := m.rdb.TxPipeline()
	if err := m.store.writeSession(ctx, pipe, g); err != nil {
		return "", err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	obslog.L().Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("player", player),
		zap.String("mode", string(mode)),
	)
	return g.ID, nil
}

func (m *Manager) newSession(ctx context.Context, player string, mode Mode) *Session {
	now := m.now()
	return &Session{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        StatusWaiting,
		Mode:          mode,
		Player1:       player,
		Player1Name:   m.username(ctx, player),
		CurrentPlayer: player,
	}
}

// Join seats player as player2. Re-joining a session the player already
// occupies is an idempotent no-op reported via AlreadyIn. A solo first move
// may already have activated the session; the second seat stays joinable
// until it is taken or the game finishes.
func (m *Manager) Join(ctx context.Context, gameID, player string) (*JoinResult, error) {
	gameID = strings.TrimSpace(gameID)
	player = strings.TrimSpace(player)
	if gameID == "" || player == "" {
		return nil, ErrInvalidArgs
	}

	var res JoinResult
	err := m.updateGame(ctx, gameID, func(tx *redis.Tx, g *Session) error {
		if WaitingExpired(g, m.ttl, m.now()) {
			return m.dropExpired(ctx, tx, g)
		}
		if g.HasSeat(player) {
			res = JoinResult{AlreadyIn: true}
			return nil
		}
		if g.Player2 != "" {
			return ErrFull
		}
		if g.Status == StatusFinished {
			return ErrNotActive
		}
		g.Player2 = player
		g.Player2Name = m.username(ctx, player)
		g.Status = StatusActive
		g.UpdatedAt = m.now()
		pipe := tx.TxPipeline()
		if err := m.store.writeSession(ctx, pipe, g); err != nil {
			return err
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		res = JoinResult{Joined: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Joined {
		obslog.L().Info("game_join", zap.String("game_id", gameID), zap.String("player", player))
	}
	return &res, nil
}

// AutoMatch scans the waiting auto pool oldest-first and joins the first
// usable candidate. Losing a race for a candidate is a normal outcome: the
// caller falls through and ends up with its own fresh waiting session.
func (m *Manager) AutoMatch(ctx context.Context, player string) (*AutoMatchResult, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, ErrInvalidArgs
	}

	ids, err := m.store.autoPoolIDs(ctx, autoMatchScanLimit)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g, err := m.store.loadSession(ctx, m.rdb, id)
		if err != nil {
			return nil, err
		}
		if g == nil {
			// dangling pool entry; clearing it here is fine, this is a
			// mutation path
			_ = m.rdb.ZRem(ctx, m.store.keyAutoPool(), id).Err()
			continue
		}
		if WaitingExpired(g, m.ttl, m.now()) {
			if _, err := m.reapExpired(ctx, id); err != nil {
				return nil, err
			}
			continue
		}
		if g.Player1 == player || g.Player2 != "" || g.Status != StatusWaiting {
			continue
		}

		joined := false
		err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := m.store.loadSession(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur == nil || cur.Status != StatusWaiting || cur.Player2 != "" ||
				cur.Player1 == player || WaitingExpired(cur, m.ttl, m.now()) {
				return nil // candidate no longer usable
			}
			cur.Player2 = player
			cur.Player2Name = m.username(ctx, player)
			cur.Status = StatusActive
			cur.UpdatedAt = m.now()
			pipe := tx.TxPipeline()
			if err := m.store.writeSession(ctx, pipe, cur); err != nil {
				return err
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			joined = true
			return nil
		}, m.store.gameKey(id))
		if err == redis.TxFailedErr {
			continue // raced with another joiner; no retry by design
		}
		if err != nil {
			return nil, err
		}
		if joined {
			obslog.L().Info("auto_match",
				zap.String("game_id", id),
				zap.String("player", player),
				zap.Bool("matched", true),
			)
			return &AutoMatchResult{GameID: id, Matched: true}, nil
		}
	}

	id, err := m.Create(ctx, player, ModeAuto)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("auto_match",
		zap.String("game_id", id),
		zap.String("player", player),
		zap.Bool("matched", false),
	)
	return &AutoMatchResult{GameID: id, Matched: false}, nil
}

// Get returns the session unless it is expired, in which case it reports
// not-found without deleting anything. Deletion stays on mutation paths so
// reads remain side-effect free.
func (m *Manager) Get(ctx context.Context, gameID string) (*Session, error) {
	g, err := m.store.loadSession(ctx, m.rdb, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil || WaitingExpired(g, m.ttl, m.now()) {
		return nil, ErrNotFound
	}
	return g, nil
}

// List returns the most recent non-expired sessions, newest first, capped at
// twenty after the expiry filter.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	ids, err := m.store.recentIDs(ctx, listScanLimit)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]*Session, 0, listResultLimit)
	for _, id := range ids {
		g, err := m.store.loadSession(ctx, m.rdb, id)
		if err != nil {
			return nil, err
		}
		if g == nil || WaitingExpired(g, m.ttl, now) {
			continue
		}
		out = append(out, g)
		if len(out) == listResultLimit {
			break
		}
	}
	return out, nil
}

// ActiveForPlayer returns every active session where player occupies a seat,
// most recently updated first.
func (m *Manager) ActiveForPlayer(ctx context.Context, player string) ([]*Session, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, nil
	}
	ids, err := m.store.playerGameIDs(ctx, player)
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, id := range ids {
		g, err := m.store.loadSession(ctx, m.rdb, id)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Status != StatusActive || !g.HasSeat(player) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// WaitingAutoForPlayer returns the player's own unexpired waiting auto
// session without a second seat, or nil.
func (m *Manager) WaitingAutoForPlayer(ctx context.Context, player string) (*Session, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, nil
	}
	ids, err := m.store.playerGameIDs(ctx, player)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var best *Session
	for _, id := range ids {
		g, err := m.store.loadSession(ctx, m.rdb, id)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Status != StatusWaiting || g.Mode != ModeAuto {
			continue
		}
		if g.Player1 != player || g.Player2 != "" || WaitingExpired(g, m.ttl, now) {
			continue
		}
		if best == nil || g.CreatedAt.After(best.CreatedAt) {
			best = g
		}
	}
	return best, nil
}

// MovesForGame returns the session's moves ascending by move number.
func (m *Manager) MovesForGame(ctx context.Context, gameID string) ([]*Move, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, ErrInvalidArgs
	}
	return m.store.movesForGame(ctx, gameID, maxMovesPerGame)
}

// CleanupExpiredWaiting sweeps up to 500 waiting sessions and deletes the
// expired ones. Idempotent; safe on a schedule.
func (m *Manager) CleanupExpiredWaiting(ctx context.Context) (int, error) {
	ids, err := m.store.oldestWaitingIDs(ctx, cleanupScanLimit)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		g, err := m.store.loadSession(ctx, m.rdb, id)
		if err != nil {
			return deleted, err
		}
		if g == nil {
			_ = m.rdb.ZRem(ctx, m.store.keyWaiting(), id).Err()
			_ = m.rdb.ZRem(ctx, m.store.keyAutoPool(), id).Err()
			continue
		}
		if !WaitingExpired(g, m.ttl, m.now()) {
			continue
		}
		ok, err := m.reapExpired(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	if deleted > 0 {
		obslog.L().Info("expired_sweep", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// updateGame runs fn inside an optimistic transaction on the session key,
// re-running it a bounded number of times when the watch is invalidated.
func (m *Manager) updateGame(ctx context.Context, gameID string, fn func(tx *redis.Tx, g *Session) error) error {
	key := m.store.gameKey(gameID)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			g, err := m.store.loadSession(ctx, tx, gameID)
			if err != nil {
				return err
			}
			if g == nil {
				return ErrNotFound
			}
			return fn(tx, g)
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// dropExpired deletes an expired waiting session inside the caller's
// transaction and reports ErrExpired. Safe because no second player was ever
// seated.
func (m *Manager) dropExpired(ctx context.Context, tx *redis.Tx, g *Session) error {
	pipe := tx.TxPipeline()
	m.store.removeSession(ctx, pipe, g)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	obslog.L().Info("game_expired", zap.String("game_id", g.ID))
	return ErrExpired
}

// reapExpired deletes one expired waiting session under its own watch,
// rechecking the predicate after the read so a concurrent join wins cleanly.
func (m *Manager) reapExpired(ctx context.Context, gameID string) (bool, error) {
	deleted := false
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		g, err := m.store.loadSession(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if g == nil || !WaitingExpired(g, m.ttl, m.now()) {
			return nil
		}
		pipe := tx.TxPipeline()
		m.store.removeSession(ctx, pipe, g)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		deleted = true
		return nil
	}, m.store.gameKey(gameID))
	if err == redis.TxFailedErr {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if deleted {
		obslog.L().Info("game_expired", zap.String("game_id", gameID))
	}
	return deleted, nil
}

func (m *Manager) username(ctx context.Context, player string) string {
	if m.profiles == nil {
		return ""
	}
	name, err := m.profiles.Username(ctx, player)
	if err != nil {
		obslog.L().Warn("profile_lookup_error", zap.String("player", player), zap.Error(err))
		return ""
	}
	return name
}

// ParseRedisURL extracts client options from a redis:// or rediss:// URL.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
