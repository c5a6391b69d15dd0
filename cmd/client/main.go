package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/Tyrowin/circe/internal/client"
	"github.com/Tyrowin/circe/internal/logging"
	"github.com/Tyrowin/circe/internal/transport"
)

const dialTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "circe:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("circe", pflag.ContinueOnError)
	ip := fs.String("ip", "127.0.0.1", "server IP address")
	port := fs.Int("port", 1234, "server TCP port")
	wsURL := fs.String("ws", "", "connect over WebSocket to this URL (e.g. ws://localhost:8080/ws) instead of TCP")
	origin := fs.String("origin", "http://localhost:8080", "Origin header sent with --ws")
	useUI := fs.Bool("ui", false, "use the full-screen terminal interface")
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logOut := io.Writer(os.Stderr)
	if *useUI {
		logOut = io.Discard
	}
	log, err := logging.New(*logLevel, logging.FormatText, logOut)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	var (
		conn   transport.Conn
		target string
	)
	if *wsURL != "" {
		target = *wsURL
		conn, err = transport.DialWebSocket(ctx, target,
			transport.WithHeader(map[string][]string{"Origin": {*origin}}),
			transport.WithLogger(log))
	} else {
		if err := transport.ValidateIP(*ip); err != nil {
			return err
		}
		if err := transport.ValidatePort(*port); err != nil {
			return err
		}
		target = net.JoinHostPort(*ip, strconv.Itoa(*port))
		conn, err = transport.Dial(ctx, target, transport.WithLogger(log))
	}
	if err != nil {
		return err
	}

	if *useUI {
		ui, err := client.NewUI(conn, target, client.WithLogger(log))
		if err != nil {
			_ = conn.Close()
			return err
		}
		defer ui.Close()
		return ui.Run()
	}

	fmt.Printf("Connected to %s. Type \\help for commands.\n", target)
	err = client.New(conn, os.Stdout, client.WithLogger(log)).Run(os.Stdin)
	if errors.Is(err, client.ErrConnectionLost) {
		return nil
	}
	return err
}
