package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/havenova-x/hxcommunity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	windowServer string
	windowPage   string
)

func init() {
	rootCmd.AddCommand(windowCmd)
	windowCmd.Flags().StringVar(&windowServer, "server", "http://localhost:8787", "Address of a running `hxcommunity serve`")
	windowCmd.Flags().StringVar(&windowPage, "url", "/", "Page this window reports as open")
}

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Connect as a window and print worker commands",
	Long: "Register with a running `serve` as an open window. Notifications, focus and\n" +
		"open requests from the worker are printed as they arrive.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hubURL := strings.TrimRight(windowServer, "/") + "/sw/clients"
		conn, err := hxcommunity.DialWindow(ctx, hubURL, windowPage, printWindowCommand,
			&hxcommunity.WindowConfig{Logger: log.Logger})
		if err != nil {
			return err
		}
		defer conn.Close()

		fmt.Fprintf(os.Stderr, "Connected as window %s\n", conn.ID())
		<-ctx.Done()
		return nil
	},
}

func printWindowCommand(cmd hxcommunity.WindowCommand) {
	if jsonOutput {
		_ = printJSON(cmd)
		return
	}
	switch cmd.Type {
	case hxcommunity.CommandNotification:
		if n := cmd.Notification; n != nil {
			fmt.Printf("[notification] %s: %s\n", n.Title, n.Body)
		}
	case hxcommunity.CommandOpen:
		fmt.Printf("[open] %s\n", cmd.URL)
	default:
		fmt.Printf("[%s]\n", cmd.Type)
	}
}
