package main

import (
	"asset_lending_tool/app"
	"asset_lending_tool/config"
	"asset_lending_tool/logger"
	"asset_lending_tool/routes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	if err := logger.Init(os.Getenv("ENV") != "production"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	application := app.MustNew(log)
	defer application.Close()

	r := application.Router
	routes.RegisterRoutes(r, application)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 逾期扫描
	application.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + application.Config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
