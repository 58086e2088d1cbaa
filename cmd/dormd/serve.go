package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dormitory-housing-backend/internal/api"
	"dormitory-housing-backend/internal/scheduler"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the automatic allocation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			// Create a context that can be cancelled
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			gin.SetMode(gin.ReleaseMode)
			handler := api.NewHandler(a.db, a.structure, a.apps, a.engine, a.transfer, a.log)
			// The router hooks the engine, so it is built before the scheduler starts.
			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           api.NewRouter(handler, &a.cfg.Server, a.metrics, a.log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go scheduler.NewService(&a.cfg.Allocation, a.engine, a.log).Run(ctx)

			serveErr := make(chan error, 1)
			go func() {
				a.log.Info("HTTP server starting", zap.Int("port", a.cfg.Server.Port))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			// Setup signal handling for graceful shutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-stop:
				a.log.Info("shutdown signal received, stopping services")
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("HTTP server ListenAndServe: %w", err)
				}
			}
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server Shutdown: %w", err)
			}

			a.log.Info("server gracefully stopped")
			return nil
		},
	}
}
