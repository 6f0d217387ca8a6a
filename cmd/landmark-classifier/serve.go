package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/menta2k/landmark-classifier/internal/handlers"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve classification over HTTP",
		Long: `Start an HTTP server exposing:

  GET  /health    - liveness and model state
  POST /classify  - multipart upload with an "image" file and optional "rotation"

Example:
  curl -X POST -F "image=@paris.jpg" -F "rotation=90" http://localhost:8080/classify`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	addModelFlags(cmd.Flags())
	cmd.Flags().String("addr", ":8080", "listen address")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	lc, cleanup, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	h := handlers.NewHandler(lc.Model(), log,
		handlers.WithMaxUploadMB(cfg.Server.MaxUploadMB),
		handlers.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Server.Addr,
			"backend": cfg.Engine.Backend,
			"model":   cfg.Classifier.ModelAsset,
		}).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
