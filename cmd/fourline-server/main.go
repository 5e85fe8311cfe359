package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	appcfg "github.com/kapu/fourline-go/internal/config"
	"github.com/kapu/fourline-go/internal/game"
	"github.com/kapu/fourline-go/internal/httpapi"
	"github.com/kapu/fourline-go/internal/msgcat"
	"github.com/kapu/fourline-go/internal/obslog"
	"github.com/kapu/fourline-go/internal/profile"
	"github.com/kapu/fourline-go/internal/wsgate"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opts, err := game.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	games := game.NewManagerWithClient(rdb)
	games.SetWaitingTTL(cfg.WaitingGameTTL)
	games.SetRetention(cfg.GameRetention)

	profiles := profile.NewStore(rdb)
	games.AttachProfiles(profiles)

	if cfg.DatabaseURL != "" {
		repo, err := game.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive repository error: %v", err)
		}
		defer repo.Close()
		games.AttachRepository(repo)
	}

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	api := httpapi.NewServer(games, profiles, cat)
	httpSrv := &fasthttp.Server{Handler: api.Handler, Name: "fourline"}
	go func() {
		obslog.L().Info("http_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(cfg.ListenAddr); err != nil {
			obslog.L().Error("http_server_error", zap.Error(err))
		}
	}()

	wsSrv := &http.Server{Addr: cfg.WSListenAddr, Handler: wsgate.New(games).Handler()}
	go func() {
		obslog.L().Info("ws_listen", zap.String("addr", cfg.WSListenAddr))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Error("ws_server_error", zap.Error(err))
		}
	}()

	stopSweep := make(chan struct{})
	if cfg.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopSweep:
					return
				case <-ticker.C:
					if _, err := games.CleanupExpiredWaiting(context.Background()); err != nil {
						obslog.L().Error("expired_sweep_error", zap.Error(err))
					}
				}
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	obslog.L().Info("shutdown_begin")
	close(stopSweep)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = wsSrv.Shutdown(shutdownCtx)
	_ = httpSrv.ShutdownWithContext(shutdownCtx)
	_ = games.Close()
	obslog.L().Info("shutdown_complete")
}
