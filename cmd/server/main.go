package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Tyrowin/circe/internal/logging"
	"github.com/Tyrowin/circe/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "circe-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("circe-server", pflag.ContinueOnError)
	server.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := server.LoadConfig(fs)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	log.Info("Starting Circe chat server...")
	srv := server.New(cfg, server.WithLogger(log))

	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	fatal := make(chan error, 3)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			fatal <- err
		}
	}()

	httpSrv := server.CreateServer(cfg.HTTPAddr, srv.Handler())
	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.StartServer(httpSrv, log); err != nil {
				fatal <- err
			}
		}()
		go func() {
			if err := srv.Serve(srv.WebSocketListener()); err != nil && !errors.Is(err, server.ErrServerClosed) {
				fatal <- err
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var runErr error
	select {
	case s := <-sig:
		log.WithField("signal", s.String()).Info("Signal received, shutting down")
	case runErr = <-fatal:
		log.WithError(runErr).Error("Server failed, shutting down")
	}

	if cfg.HTTPAddr != "" {
		_ = server.ShutdownServer(httpSrv, cfg.ShutdownTimeout, log)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Chat server shutdown incomplete")
	}
	log.Info("Server stopped")
	return runErr
}
