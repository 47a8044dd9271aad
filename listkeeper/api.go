package listkeeper

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

// apiServer is the small HTTP surface used for liveness checks and a
// status snapshot. It exposes no mutating endpoints.
type apiServer struct {
	lk         *ListKeeper
	config     *APIConfig
	logger     *slog.Logger
	httpServer *http.Server
}

func newAPIServer(lk *ListKeeper, config *APIConfig, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = slog.Default()
	}
	api := &apiServer{
		lk:     lk,
		config: config,
		logger: logger.With(loggerNameKey, "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/", api.getRoot)
	engine.GET("/status", api.getStatus)

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return api
}

func (a *apiServer) getRoot(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running!")
}

func (a *apiServer) getStatus(c *gin.Context) {
	// the store belongs to the gateway flow; snapshot counts under its lock
	a.lk.mu.Lock()
	entries := a.lk.store.Len()
	channels := len(a.lk.store.ChannelIDs())
	a.lk.mu.Unlock()

	status := gin.H{
		"version":   Version,
		"connected": a.lk.discord.connected.Load(),
		"entries":   entries,
		"channels":  channels,
	}
	if !a.lk.startedAt.IsZero() {
		status["uptime"] = time.Since(a.lk.startedAt).Round(time.Second).String()
	}
	c.JSON(http.StatusOK, status)
}

// Serve listens until ctx is canceled, then shuts down gracefully within
// the configured shutdown timeout.
func (a *apiServer) Serve(ctx context.Context) error {
	listenCfg := net.ListenConfig{}
	listener, err := listenCfg.Listen(
		ctx,
		a.config.ListenNetwork,
		a.config.Listen,
	)
	if err != nil {
		return err
	}
	a.logger.Info("api listening", "address", a.config.Listen)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.httpServer.Serve(listener)
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			a.lk.config.ShutdownTimeout,
		)
		defer cancel()
		if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("error shutting down api server", tint.Err(shutdownErr))
			return shutdownErr
		}
		return nil
	}
}
