package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	deliverymcp "research-master/internal/delivery/mcp"
)

type serveCmd struct {
	HTTP  string `help:"Listen address for the streamable HTTP transport, e.g. :8080. Omit for stdio."`
	Stdio bool   `help:"Serve the MCP protocol on stdin/stdout (the default)."`
}

func (c *serveCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	srv := deliverymcp.New(app.uc, app.logger)

	if c.HTTP == "" {
		app.logger.Info("serving MCP over stdio")
		return srv.ServeStdio()
	}
	return c.serveHTTP(app.logger, srv)
}

func (c *serveCmd) serveHTTP(logger *slog.Logger, srv *deliverymcp.Server) error {
	httpSrv := &http.Server{
		Addr:              c.HTTP,
		Handler:           deliverymcp.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", c.HTTP))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
