package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff/wsroom"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a room authority",
	Long: `Run the WebSocket room authority that clients replicate through.

The authority keeps rooms in memory: each room assigns a global
sequence to every operation it accepts and rebroadcasts it to all
members. Rooms are created on first join and their history lives for
the life of the process.

Example:
  skiff serve
  skiff serve --addr 127.0.0.1:9090`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	srv := wsroom.NewServer(&wsroom.ServerConfig{Addr: serveAddr})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	printInfo(fmt.Sprintf("Room authority listening on %s", srv.Addr()))
	printMuted("  rooms at ws://" + srv.Addr() + "/rooms/<room>")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	printMuted("shutting down")
	return srv.Stop()
}
