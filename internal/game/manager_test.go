package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	url := fmt.Sprintf("redis://%s/0", mr.Addr())
	m, err := NewManager(url)
	if err != nil {
		t.Fatalf("game.NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	clock := newFakeClock()
	m.now = clock.Now
	return m, clock
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Status != StatusWaiting || g.Mode != ModeFriend {
		t.Fatalf("unexpected status/mode: %s/%s", g.Status, g.Mode)
	}
	if g.Player1 != "alice" || g.Player2 != "" || g.CurrentPlayer != "alice" {
		t.Fatalf("unexpected seats: %+v", g)
	}
	var empty [6][7]string
	for r := range g.Board {
		for c := range g.Board[r] {
			if string(g.Board[r][c]) != empty[r][c] {
				t.Fatalf("board not empty at (%d,%d)", r, c)
			}
		}
	}
}

func TestCreateValidatesArgs(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Create(ctx, "", ModeFriend); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs for empty player, got %v", err)
	}
	if _, err := m.Create(ctx, "alice", Mode("ranked")); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs for unknown mode, got %v", err)
	}
}

func TestJoinFlow(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "alice", ModeFriend)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := m.Join(ctx, id, "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !res.Joined || res.AlreadyIn {
		t.Fatalf("expected fresh join, got %+v", res)
	}
	g, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Status != StatusActive || g.Player2 != "bob" {
		t.Fatalf("join did not activate: %+v", g)
	}
	// current player is unchanged by the join
	if g.CurrentPlayer != "alice" {
		t.Fatalf("join moved the turn: %q", g.CurrentPlayer)
	}

	// third party is rejected
	if _, err := m.Join(ctx, id, "carol"); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestJoinIdempotentForParticipants(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, _ := m.Create(ctx, "alice", ModeFriend)
	res, err := m.Join(ctx, id, "alice")
	if err != nil || !res.AlreadyIn {
		t.Fatalf("creator rejoin: res=%+v err=%v", res, err)
	}
	if _, err := m.Join(ctx, id, "bob"); err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	// twice, same non-error outcome both times
	for i := 0; i < 2; i++ {
		res, err := m.Join(ctx, id, "bob")
		if err != nil || !res.AlreadyIn || res.Joined {
			t.Fatalf("rejoin #%d: res=%+v err=%v", i, res, err)
		}
	}
	g, _ := m.Get(ctx, id)
	if g.Player2 != "bob" {
		t.Fatalf("seat double-assigned: %q", g.Player2)
	}
}

func TestJoinNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Join(context.Background(), "missing", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiryVisibilityAndLazyDelete(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	id, _ := m.Create(ctx, "alice", ModeFriend)

	clock.Advance(4*time.Minute + 59*time.Second)
	if _, err := m.Get(ctx, id); err != nil {
		t.Fatalf("Get before TTL: %v", err)
	}

	clock.Advance(2 * time.Second)
	// read path hides the session without deleting it
	if _, err := m.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
	if g, err := m.store.loadSession(ctx, m.rdb, id); err != nil || g == nil {
		t.Fatalf("expired session should still be stored: g=%v err=%v", g, err)
	}

	// mutation path deletes and reports expiry
	if _, err := m.Join(ctx, id, "bob"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on join, got %v", err)
	}
	if g, _ := m.store.loadSession(ctx, m.rdb, id); g != nil {
		t.Fatalf("join did not delete the expired session")
	}
	// once gone, further joins see not-found
	if _, err := m.Join(ctx, id, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestJoinedSessionNeverExpires(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	id, _ := m.Create(ctx, "alice", ModeFriend)
	if _, err := m.Join(ctx, id, "bob"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	clock.Advance(48 * time.Hour)
	if _, err := m.Get(ctx, id); err != nil {
		t.Fatalf("joined session treated as expired: %v", err)
	}
	n, err := m.CleanupExpiredWaiting(ctx)
	if err != nil || n != 0 {
		t.Fatalf("sweep touched a joined session: n=%d err=%v", n, err)
	}
}

func TestAutoMatchPairsTwoPlayers(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.AutoMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("AutoMatch alice: %v", err)
	}
	if first.Matched {
		t.Fatalf("first caller should wait, got %+v", first)
	}
	second, err := m.AutoMatch(ctx, "bob")
	if err != nil {
		t.Fatalf("AutoMatch bob: %v", err)
	}
	if !second.Matched || second.GameID != first.GameID {
		t.Fatalf("expected bob to join alice's game: %+v vs %+v", second, first)
	}
	g, err := m.Get(ctx, first.GameID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Status != StatusActive || g.Player2 != "bob" || g.Mode != ModeAuto {
		t.Fatalf("unexpected matched session: %+v", g)
	}
}

func TestAutoMatchNeverPairsWithSelf(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, _ := m.AutoMatch(ctx, "alice")
	second, err := m.AutoMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}
	if second.Matched || second.GameID == first.GameID {
		t.Fatalf("caller paired with itself: %+v", second)
	}
}

func TestAutoMatchReapsExpiredCandidates(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	stale, _ := m.AutoMatch(ctx, "alice")
	clock.Advance(6 * time.Minute)

	res, err := m.AutoMatch(ctx, "bob")
	if err != nil {
		t.Fatalf("AutoMatch bob: %v", err)
	}
	if res.Matched {
		t.Fatalf("matched into an expired session: %+v", res)
	}
	if g, _ := m.store.loadSession(ctx, m.rdb, stale.GameID); g != nil {
		t.Fatalf("expired candidate not reaped during scan")
	}
}

func TestListNewestFirstAndFiltered(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	oldID, _ := m.Create(ctx, "alice", ModeFriend)
	clock.Advance(3 * time.Minute)
	midID, _ := m.Create(ctx, "bob", ModeFriend)
	clock.Advance(time.Minute)
	newID, _ := m.Create(ctx, "carol", ModeFriend)

	sessions, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != newID || sessions[1].ID != midID || sessions[2].ID != oldID {
		t.Fatalf("unexpected order: %s %s %s", sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}

	// push the oldest past its TTL; it disappears without being deleted
	clock.Advance(2 * time.Minute)
	sessions, err = m.List(ctx)
	if err != nil {
		t.Fatalf("List#2: %v", err)
	}
	for _, g := range sessions {
		if g.ID == oldID {
			t.Fatalf("expired session still listed")
		}
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestActiveForPlayer(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id1, _ := m.Create(ctx, "alice", ModeFriend)
	_, _ = m.Join(ctx, id1, "bob")
	id2, _ := m.Create(ctx, "alice", ModeFriend) // still waiting
	_ = id2

	games, err := m.ActiveForPlayer(ctx, "alice")
	if err != nil {
		t.Fatalf("ActiveForPlayer: %v", err)
	}
	if len(games) != 1 || games[0].ID != id1 {
		t.Fatalf("expected only the active game, got %d", len(games))
	}
	games, err = m.ActiveForPlayer(ctx, "bob")
	if err != nil || len(games) != 1 {
		t.Fatalf("bob should see the joined game: %d %v", len(games), err)
	}
}

func TestWaitingAutoForPlayer(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	if g, err := m.WaitingAutoForPlayer(ctx, "alice"); err != nil || g != nil {
		t.Fatalf("expected none before automatch: %v %v", g, err)
	}
	res, _ := m.AutoMatch(ctx, "alice")
	g, err := m.WaitingAutoForPlayer(ctx, "alice")
	if err != nil || g == nil || g.ID != res.GameID {
		t.Fatalf("expected own waiting auto session: %v %v", g, err)
	}
	// friend-mode waiting sessions don't count
	if _, err := m.Create(ctx, "bob", ModeFriend); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g, _ := m.WaitingAutoForPlayer(ctx, "bob"); g != nil {
		t.Fatalf("friend session reported as auto: %v", g)
	}
	// gone once expired
	clock.Advance(6 * time.Minute)
	if g, _ := m.WaitingAutoForPlayer(ctx, "alice"); g != nil {
		t.Fatalf("expired session reported: %v", g)
	}
}

func TestCleanupExpiredWaiting(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "alice", ModeFriend)
	b, _ := m.AutoMatch(ctx, "bob")
	keep, _ := m.Create(ctx, "carol", ModeFriend)
	_, _ = m.Join(ctx, keep, "dave")

	clock.Advance(6 * time.Minute)
	fresh, _ := m.Create(ctx, "erin", ModeFriend)

	n, err := m.CleanupExpiredWaiting(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredWaiting: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	for _, id := range []string{a, b.GameID} {
		if g, _ := m.store.loadSession(ctx, m.rdb, id); g != nil {
			t.Fatalf("expired session %s survived the sweep", id)
		}
	}
	if _, err := m.Get(ctx, keep); err != nil {
		t.Fatalf("joined session swept: %v", err)
	}
	if _, err := m.Get(ctx, fresh); err != nil {
		t.Fatalf("fresh session swept: %v", err)
	}

	// idempotent
	n, err = m.CleanupExpiredWaiting(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

type staticProfiles map[string]string

func (p staticProfiles) Username(_ context.Context, playerID string) (string, error) {
	return p[playerID], nil
}

func TestNameDenormalization(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	m.AttachProfiles(staticProfiles{"alice": "Alice", "bob": "Bob"})

	id, _ := m.Create(ctx, "alice", ModeFriend)
	_, _ = m.Join(ctx, id, "bob")
	g, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Player1Name != "Alice" || g.Player2Name != "Bob" {
		t.Fatalf("names not denormalized: %q %q", g.Player1Name, g.Player2Name)
	}
}
