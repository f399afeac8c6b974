// @title           Taskboard API
// @version         1.0
// @description     Task assignment API: admins assign tasks with deadlines, priority and attachments; users track their own.
// @host            localhost:8080
// @BasePath        /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/app"
	"github.com/adrian-cabangis/taskboard/internal/config"

	_ "github.com/adrian-cabangis/taskboard/docs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger config lives in the config itself; fall back to a bare one.
		fallback := app.NewLogger(config.AppConfig{})
		fallback.Fatal().Err(err).Msg("config")
	}
	log := app.NewLogger(cfg.App)
	log.Info().Str("env", cfg.App.Env).Msg("config loaded, connecting to Postgres and Redis")

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("app init")
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      application.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration(),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := application.Close(ctx); err != nil {
		log.Error().Err(err).Msg("app close")
	}
}
