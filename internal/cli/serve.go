package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/artsync/internal/api"
	"github.com/timmy/artsync/internal/service"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exports, objectStorage, err := a.exportService(ctx)
	if err != nil {
		return err
	}
	gallery, err := service.NewGalleryService(a.registry, a.cfg.Paging.MaxEmptyRounds, a.log)
	if err != nil {
		return err
	}

	router := api.SetupRouter(&a.cfg.Server, &api.Deps{
		Gallery:     gallery,
		Exports:     exports,
		ArchiveRepo: a.archiveRepo,
		JobRepo:     a.jobRepo,
		Storage:     objectStorage,
		DB:          a.sqlDB,
		Logger:      a.log,
	})

	port := a.cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("port", port).WithField("mode", a.cfg.Server.Mode).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("Server forced to shutdown")
	}
	if err := exports.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("Export jobs did not stop in time")
	}

	a.log.Info("Server exited")
	return nil
}
