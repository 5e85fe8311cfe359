package wsgate

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/fourline-go/internal/game"
	"github.com/kapu/fourline-go/internal/obslog"
	"github.com/kapu/fourline-go/pkg/gamedto"
)

// Gateway pushes session snapshots to websocket subscribers. It polls the
// store at a short interval and writes a frame whenever the watched document
// changed; the store stays the single source of truth and reads stay
// side-effect free.
type Gateway struct {
	games    *game.Manager
	interval time.Duration
}

func New(games *game.Manager) *Gateway {
	return &Gateway{games: games, interval: time.Second}
}

// Handler mounts the subscribe endpoint at /ws?game=<id>.
func (gw *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.serveWS)
	return mux
}

func (gw *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		http.Error(w, "game query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	ticker := time.NewTicker(gw.interval)
	defer ticker.Stop()

	var lastUpdated time.Time
	first := true
	for {
		sess, err := gw.games.Get(ctx, gameID)
		if err != nil {
			if errors.Is(err, game.ErrNotFound) {
				_ = wsjson.Write(ctx, conn, map[string]string{"event": "gone", "game_id": gameID})
				conn.Close(websocket.StatusNormalClosure, "game gone")
				return
			}
			obslog.L().Error("ws_poll_error", zap.String("game_id", gameID), zap.Error(err))
			return
		}
		if first || sess.UpdatedAt.After(lastUpdated) {
			snap := gamedto.FromSession(sess, game.RemainingWait(sess, gw.games.WaitingTTL(), time.Now()))
			if err := wsjson.Write(ctx, conn, snap); err != nil {
				return
			}
			lastUpdated = sess.UpdatedAt
			first = false
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}
