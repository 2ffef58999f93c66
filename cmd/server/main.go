package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rigshare/rigshare/internal/auth"
	"github.com/rigshare/rigshare/internal/config"
	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/hub"
	"github.com/rigshare/rigshare/internal/obs"
	"github.com/rigshare/rigshare/internal/presence"
	"github.com/rigshare/rigshare/internal/relay"
	"github.com/rigshare/rigshare/internal/web"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		obs.Error("config.load", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	obs.Info("server.start", obs.Fields{"listen": cfg.Listen, "ops": cfg.OpsListen, "presence": cfg.Redis.Addr != ""})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	events := hub.New()
	slots := gate.New(events)
	ops := &opsState{}

	mux := http.NewServeMux()
	if cfg.SecretsConfigured() {
		verifier := auth.NewVerifier(cfg.SharerSecret, cfg.ControllerSecret)
		engine := relay.NewPipeEngine(cfg.EngineQueue)
		srv := relay.NewServer(slots, events, verifier, engine, relay.Options{
			AuthDeadline:  cfg.AuthDeadline(),
			SessionQueue:  cfg.SessionQueue,
			MaxFrameBytes: cfg.MaxFrameBytes,
		})
		srv.SetupRoutes(mux)
	} else {
		obs.Error("secrets.missing", obs.Fields{"hint": "set " + config.EnvSharerSecret + " and " + config.EnvControllerSecret})
		setupUnavailableRoutes(mux)
	}

	relaySrv := &http.Server{Addr: cfg.Listen, Handler: mux}

	pub, err := presence.NewPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		obs.Error("presence.connect", obs.Fields{"err": err.Error(), "addr": cfg.Redis.Addr})
		os.Exit(1)
	}
	go presence.Run(ctx, pub, slots.Snapshot, cfg.Redis.Heartbeat())

	go startOpsServer(cfg.OpsListen, slots, ops, started)

	errCh := make(chan error, 1)
	go func() {
		if err := relaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ops.ready.Store(true)
	obs.Info("server.ready", obs.Fields{})

	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case err := <-errCh:
		obs.Error("listen.relay", obs.Fields{"err": err.Error(), "addr": cfg.Listen})
	}

	ops.closing.Store(true)
	// Closing the gate first tears down live sessions; the upgraded
	// connections are hijacked, so server Shutdown does not wait on them.
	slots.Shutdown()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = relaySrv.Shutdown(shCtx)
	if err := pub.Close(shCtx); err != nil {
		obs.Error("presence.close", obs.Fields{"err": err.Error()})
	}
	obs.Info("server.shutdown.complete", obs.Fields{})
}

// setupUnavailableRoutes answers the role endpoints with a static
// diagnostic page. Used when the credential secrets are missing and the
// relay must not admit anyone.
func setupUnavailableRoutes(mux *http.ServeMux) {
	h := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = web.Render(w, "unavailable", map[string]any{"Reason": "credential secrets are not configured"})
	}
	mux.HandleFunc("/sharer", h)
	mux.HandleFunc("/status", h)
	mux.HandleFunc("/controller", h)
}
