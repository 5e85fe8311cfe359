package httpapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/fourline-go/internal/game"
	"github.com/kapu/fourline-go/internal/msgcat"
	"github.com/kapu/fourline-go/internal/obslog"
	"github.com/kapu/fourline-go/internal/profile"
	"github.com/kapu/fourline-go/internal/render"
	"github.com/kapu/fourline-go/pkg/gamedto"
)

// Server exposes the game manager over a JSON HTTP API. Handlers stay thin:
// decode, call the manager, encode.
type Server struct {
	games    *game.Manager
	profiles *profile.Store
	cat      *msgcat.Catalog
}

func NewServer(games *game.Manager, profiles *profile.Store, cat *msgcat.Catalog) *Server {
	return &Server{games: games, profiles: profiles, cat: cat}
}

// Handler is the fasthttp entry point.
//
//	POST /games                       create
//	GET  /games                       list recent
//	POST /games/automatch             auto-match
//	POST /games/cleanup               sweep expired waiting sessions
//	GET  /games/{id}                  fetch one session
//	GET  /games/{id}/moves            move history
//	GET  /games/{id}/board.png        board snapshot
//	POST /games/{id}/join|play|resign|rematch
//	GET  /players/{id}/games          active sessions for player
//	GET  /players/{id}/waiting-auto   player's open auto-match session
//	POST /profiles                    set username
//	GET  /profiles/{id}               fetch profile
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	method := string(ctx.Method())

	switch {
	case len(parts) == 1 && parts[0] == "games":
		switch method {
		case fasthttp.MethodPost:
			s.handleCreate(ctx)
		case fasthttp.MethodGet:
			s.handleList(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[0] == "games" && parts[1] == "automatch":
		s.handleAutoMatch(ctx)
	case len(parts) == 2 && parts[0] == "games" && parts[1] == "cleanup":
		s.handleCleanup(ctx)
	case len(parts) == 2 && parts[0] == "games":
		s.handleGet(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "games":
		s.handleGameAction(ctx, parts[1], parts[2], method)
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "games":
		s.handleActiveForPlayer(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "waiting-auto":
		s.handleWaitingAuto(ctx, parts[1])
	case len(parts) == 1 && parts[0] == "profiles" && method == fasthttp.MethodPost:
		s.handleSetUsername(ctx)
	case len(parts) == 2 && parts[0] == "profiles":
		s.handleGetProfile(ctx, parts[1])
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleGameAction(ctx *fasthttp.RequestCtx, gameID, action, method string) {
	if method == fasthttp.MethodGet {
		switch action {
		case "moves":
			s.handleMoves(ctx, gameID)
			return
		case "board.png":
			s.handleBoardPNG(ctx, gameID)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	switch action {
	case "join":
		s.handleJoin(ctx, gameID)
	case "play":
		s.handlePlay(ctx, gameID)
	case "resign":
		s.handleResign(ctx, gameID)
	case "rematch":
		s.handleRematch(ctx, gameID)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req gamedto.CreateRequest
	if !s.decode(ctx, &req) {
		return
	}
	id, err := s.games.Create(ctx, req.Player, game.Mode(req.Mode))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusCreated, gamedto.CreateResponse{GameID: id})
}

func (s *Server) handleAutoMatch(ctx *fasthttp.RequestCtx) {
	var req gamedto.AutoMatchRequest
	if !s.decode(ctx, &req) {
		return
	}
	res, err := s.games.AutoMatch(ctx, req.Player)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, gamedto.AutoMatchResponse{GameID: res.GameID, Matched: res.Matched})
}

func (s *Server) handleJoin(ctx *fasthttp.RequestCtx, gameID string) {
	var req gamedto.JoinRequest
	if !s.decode(ctx, &req) {
		return
	}
	res, err := s.games.Join(ctx, gameID, req.Player)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := gamedto.JoinResponse{Joined: res.Joined, AlreadyIn: res.AlreadyIn}
	if res.Joined {
		out.Message = s.cat.Render("game.matched", map[string]string{"GameID": gameID})
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handlePlay(ctx *fasthttp.RequestCtx, gameID string) {
	var req gamedto.PlayRequest
	if !s.decode(ctx, &req) {
		return
	}
	if err := s.games.Play(ctx, gameID, req.Player, req.Column); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleResign(ctx *fasthttp.RequestCtx, gameID string) {
	var req gamedto.ResignRequest
	if !s.decode(ctx, &req) {
		return
	}
	if err := s.games.Resign(ctx, gameID, req.Player); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleRematch(ctx *fasthttp.RequestCtx, gameID string) {
	var req gamedto.RematchRequest
	if !s.decode(ctx, &req) {
		return
	}
	res, err := s.games.RequestRematch(ctx, gameID, req.Player)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := gamedto.RematchResponse{GameID: res.GameID, Waiting: res.Waiting}
	if res.Waiting {
		out.Message = s.cat.Render("rematch.waiting", nil)
	} else {
		out.Message = s.cat.Render("rematch.ready", map[string]string{"GameID": res.GameID})
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleCleanup(ctx *fasthttp.RequestCtx) {
	n, err := s.games.CleanupExpiredWaiting(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, gamedto.CleanupResponse{Deleted: n})
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx, gameID string) {
	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, s.toDTO(g))
}

func (s *Server) handleList(ctx *fasthttp.RequestCtx) {
	sessions, err := s.games.List(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := make([]*gamedto.Session, 0, len(sessions))
	for _, g := range sessions {
		out = append(out, s.toDTO(g))
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleMoves(ctx *fasthttp.RequestCtx, gameID string) {
	moves, err := s.games.MovesForGame(ctx, gameID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := make([]*gamedto.Move, 0, len(moves))
	for _, mv := range moves {
		out = append(out, gamedto.FromMove(mv))
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleBoardPNG(ctx *fasthttp.RequestCtx, gameID string) {
	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	raw, err := render.BoardPNG(g.Board, g.WinningCells)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetContentType("image/png")
	ctx.SetBody(raw)
}

func (s *Server) handleActiveForPlayer(ctx *fasthttp.RequestCtx, player string) {
	sessions, err := s.games.ActiveForPlayer(ctx, player)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := make([]*gamedto.Session, 0, len(sessions))
	for _, g := range sessions {
		out = append(out, s.toDTO(g))
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleWaitingAuto(ctx *fasthttp.RequestCtx, player string) {
	g, err := s.games.WaitingAutoForPlayer(ctx, player)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if g == nil {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, s.toDTO(g))
}

func (s *Server) handleSetUsername(ctx *fasthttp.RequestCtx) {
	var req gamedto.SetUsernameRequest
	if !s.decode(ctx, &req) {
		return
	}
	p, err := s.profiles.SetUsername(ctx, req.Player, req.Username)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, gamedto.Profile{PlayerID: p.PlayerID, Username: p.Username})
}

func (s *Server) handleGetProfile(ctx *fasthttp.RequestCtx, playerID string) {
	p, err := s.profiles.Get(ctx, playerID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if p == nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, gamedto.Profile{PlayerID: p.PlayerID, Username: p.Username})
}

func (s *Server) toDTO(g *game.Session) *gamedto.Session {
	return gamedto.FromSession(g, game.RemainingWait(g, s.games.WaitingTTL(), time.Now()))
}

func (s *Server) decode(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		s.writeError(ctx, game.ErrInvalidArgs)
		return false
	}
	return true
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("api_encode_error", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) {
	status, code, retryable := classify(err)
	if status == fasthttp.StatusInternalServerError {
		obslog.L().Error("api_error", zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	s.writeJSON(ctx, status, gamedto.DomainError{
		Code:      code,
		Message:   s.cat.Render("error."+code, nil),
		Retryable: retryable,
	})
}

func classify(err error) (status int, code string, retryable bool) {
	switch {
	case errors.Is(err, game.ErrInvalidArgs):
		return fasthttp.StatusBadRequest, "invalid_args", false
	case errors.Is(err, game.ErrNotFound):
		return fasthttp.StatusNotFound, "not_found", false
	case errors.Is(err, game.ErrExpired):
		return fasthttp.StatusGone, "expired", false
	case errors.Is(err, game.ErrFull):
		return fasthttp.StatusConflict, "full", false
	case errors.Is(err, game.ErrNotActive):
		return fasthttp.StatusConflict, "not_active", false
	case errors.Is(err, game.ErrNotYourTurn):
		return fasthttp.StatusConflict, "not_your_turn", false
	case errors.Is(err, game.ErrInvalidColumn):
		return fasthttp.StatusBadRequest, "invalid_column", false
	case errors.Is(err, game.ErrColumnFull):
		return fasthttp.StatusConflict, "column_full", false
	case errors.Is(err, game.ErrNotParticipant):
		return fasthttp.StatusForbidden, "not_participant", false
	case errors.Is(err, game.ErrGameNotFinished):
		return fasthttp.StatusConflict, "game_not_finished", false
	case errors.Is(err, game.ErrMissingOpponent):
		return fasthttp.StatusConflict, "missing_opponent", false
	case errors.Is(err, profile.ErrInvalidArgs):
		return fasthttp.StatusBadRequest, "invalid_args", false
	case errors.Is(err, profile.ErrUsernameLength):
		return fasthttp.StatusBadRequest, "username_length", false
	case errors.Is(err, profile.ErrUsernameFormat):
		return fasthttp.StatusBadRequest, "username_format", false
	case errors.Is(err, profile.ErrUsernameTaken):
		return fasthttp.StatusConflict, "username_taken", false
	default:
		return fasthttp.StatusInternalServerError, "internal", true
	}
}
