package profile

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb)
}

func TestSetUsernameAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.SetUsername(ctx, "player-1", "Alice_99")
	if err != nil {
		t.Fatalf("SetUsername: %v", err)
	}
	if p.PlayerID != "player-1" || p.Username != "Alice_99" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", p)
	}

	got, err := s.Get(ctx, "player-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Username != "Alice_99" {
		t.Fatalf("Get returned %+v", got)
	}

	name, err := s.Username(ctx, "player-1")
	if err != nil || name != "Alice_99" {
		t.Fatalf("Username: %q %v", name, err)
	}
	// unknown players resolve to an empty name, not an error
	name, err = s.Username(ctx, "stranger")
	if err != nil || name != "" {
		t.Fatalf("Username stranger: %q %v", name, err)
	}
}

func TestSetUsernameValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		want     error
	}{
		{"too short", "ab", ErrUsernameLength},
		{"too long", "abcdefghijklmnopqrstu", ErrUsernameLength},
		{"spaces", "has space", ErrUsernameFormat},
		{"symbols", "nope!", ErrUsernameFormat},
		{"unicode", "名前名前", ErrUsernameFormat},
	}
	for _, tc := range cases {
		if _, err := s.SetUsername(ctx, "player-1", tc.username); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
	if _, err := s.SetUsername(ctx, "", "validname"); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("empty player: %v", err)
	}
}

func TestUsernameUniquenessCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SetUsername(ctx, "player-1", "Alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.SetUsername(ctx, "player-2", "ALICE"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	// re-claiming your own name is fine
	if _, err := s.SetUsername(ctx, "player-1", "alice"); err != nil {
		t.Fatalf("re-claim own name: %v", err)
	}
}

func TestRenameReleasesOldName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SetUsername(ctx, "player-1", "Alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.SetUsername(ctx, "player-1", "AliceTwo"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	// the old name is free again
	if _, err := s.SetUsername(ctx, "player-2", "Alice"); err != nil {
		t.Fatalf("claim released name: %v", err)
	}
	// but the new one is held
	if _, err := s.SetUsername(ctx, "player-3", "alicetwo"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}
