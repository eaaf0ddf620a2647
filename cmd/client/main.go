/*
Package main is a terminal client for WNSChat.

It connects over TCP (--addr) or WebSocket (--ws), logs in, prints every message from the server
and sends each line typed on stdin. /logout leaves the server and /ping USER measures a round trip.
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"wnschat/internal/app/chatclient"
	"wnschat/internal/pkg/logx"
	"wnschat/internal/pkg/wsconn"
)

var (
	addr     string
	wsURL    string
	username string
	password string
	debug    bool
)

// rootCmd connects to a chat server and runs an interactive session.
var rootCmd = &cobra.Command{
	Use:          "wnschat-client",
	Short:        "Terminal client for WNSChat",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "localhost:9001", "chat server address (host:port)")
	rootCmd.Flags().StringVar(&wsURL, "ws", "", "WebSocket URL, e.g. ws://localhost:8080/ws; overrides --addr")
	rootCmd.Flags().StringVarP(&username, "user", "u", "", "username")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "server password")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log protocol details to stderr")
	_ = rootCmd.MarkFlagRequired("user")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func chat(ctx context.Context, in io.Reader, out io.Writer) error {
	level := "warn"
	if debug {
		level = "debug"
	}
	logx.InitGlobalLogger(logx.Options{Development: true, Level: level})

	rwc, remote, err := dial(ctx, addr, wsURL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	session := chatclient.NewSession(rwc, remote, func(text string) {
		fmt.Fprintln(out, text)
	})

	info, err := session.Handshake(username, password)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	fmt.Fprintf(out, "Connected to %s (%d users online)\n", info.ServerName, info.UserCount)

	go readInput(session, in)

	err = session.Run(ctx)

	var disconnected *chatclient.DisconnectedError
	switch {
	case err == nil:
		fmt.Fprintln(out, "Disconnected.")
		return nil
	case errors.As(err, &disconnected):
		fmt.Fprintf(out, "Server closed connection. Reason: %s.\n", disconnected.Reason)
		return nil
	default:
		return fmt.Errorf("connection error: %w", err)
	}
}

func dial(ctx context.Context, addr, wsURL string) (io.ReadWriteCloser, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if wsURL != "" {
		ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
		if err != nil {
			return nil, "", err
		}
		return wsconn.New(ws), wsURL, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, "", err
	}
	return conn, addr, nil
}

func readInput(session *chatclient.Session, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := session.Send(line); err != nil {
			if errors.Is(err, chatclient.ErrClosed) {
				return
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	session.Close()
}
