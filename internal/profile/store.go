package profile

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/fourline-go/internal/obslog"
)

// Profile maps an opaque player identifier to a display username.
type Profile struct {
	PlayerID  string    `json:"player_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidArgs    = errf("invalid arguments")
	ErrUsernameLength = errf("username must be 3-20 characters")
	ErrUsernameFormat = errf("only letters, numbers and underscore allowed")
	ErrUsernameTaken  = errf("that username is already in use")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Store keeps profiles in Redis: profile:<playerID> holds the JSON document,
// profile:index:username:<lower> enforces case-insensitive uniqueness.
type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func (s *Store) keyProfile(playerID string) string {
	return "profile:" + strings.TrimSpace(playerID)
}

func (s *Store) keyUsername(lower string) string {
	return "profile:index:username:" + lower
}

// SetUsername validates, claims and stores the username for playerID. A
// rename releases the previously claimed name in the same transaction.
func (s *Store) SetUsername(ctx context.Context, playerID, username string) (*Profile, error) {
	playerID = strings.TrimSpace(playerID)
	username = strings.TrimSpace(username)
	if playerID == "" {
		return nil, ErrInvalidArgs
	}
	if len(username) < 3 || len(username) > 20 {
		return nil, ErrUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameFormat
	}
	lower := strings.ToLower(username)

	var out *Profile
	idxKey := s.keyUsername(lower)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, idxKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && owner != playerID {
			return ErrUsernameTaken
		}

		existing, err := s.load(ctx, tx, playerID)
		if err != nil {
			return err
		}
		now := s.now()
		p := existing
		if p == nil {
			p = &Profile{PlayerID: playerID, CreatedAt: now}
		}
		oldLower := strings.ToLower(p.Username)
		p.Username = username
		p.UpdatedAt = now

		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, s.keyProfile(playerID), raw, 0)
		pipe.Set(ctx, idxKey, playerID, 0)
		if oldLower != "" && oldLower != lower {
			pipe.Del(ctx, s.keyUsername(oldLower))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = p
		return nil
	}, idxKey, s.keyProfile(playerID))
	if err != nil {
		return nil, err
	}
	obslog.L().Info("profile_set_username", zap.String("player", playerID), zap.String("username", out.Username))
	return out, nil
}

// Get returns the profile for playerID, or nil when none exists.
func (s *Store) Get(ctx context.Context, playerID string) (*Profile, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, nil
	}
	return s.load(ctx, s.rdb, playerID)
}

// Username implements the game manager's ProfileLookup. Unknown players
// resolve to an empty name.
func (s *Store) Username(ctx context.Context, playerID string) (string, error) {
	p, err := s.Get(ctx, playerID)
	if err != nil || p == nil {
		return "", err
	}
	return p.Username, nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, playerID string) (*Profile, error) {
	raw, err := c.Get(ctx, s.keyProfile(playerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
