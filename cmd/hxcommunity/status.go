package main

import (
	"context"
	"fmt"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, session and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			cfg := app.Config
			snap := app.State.Snapshot()

			fmt.Println("Configuration:")
			fmt.Printf("  Sheet ID:      %s\n", cfg.SheetID)
			fmt.Printf("  App origin:    %s\n", cfg.AppOrigin)
			fmt.Printf("  Cache version: %s\n", cfg.CacheVersion)
			if cfg.AIAPIKey != "" {
				fmt.Printf("  AI key:        %s\n", maskKey(cfg.AIAPIKey))
			} else {
				fmt.Println("  AI key:        (not set)")
			}

			fmt.Println()
			fmt.Println("Session:")
			if snap.CurrentUser != nil {
				fmt.Printf("  User:        %s (%s)\n", snap.CurrentUser.Username, snap.CurrentUser.Role)
			} else {
				fmt.Println("  User:        (signed out)")
			}
			fmt.Printf("  Liked posts: %d\n", len(snap.LikedPosts))
			fmt.Printf("  AI chats:    %d\n", len(snap.AIChats))
			fmt.Printf("  Theme:       %s\n", snap.Theme)

			feed := app.Feed.Snapshot()
			fmt.Println()
			fmt.Println("Feed cache:")
			if feed.FetchedAt.IsZero() {
				fmt.Println("  Never fetched")
			} else {
				fmt.Printf("  %d posts, fetched %s\n", len(feed.Items), feed.FetchedAt.Local().Format("2006-01-02 15:04:05"))
			}

			db, err := app.DB()
			if err != nil {
				return err
			}
			names, err := hxcommunity.NewSQLiteCacheStorage(db).Keys(ctx)
			if err != nil {
				return fmt.Errorf("list caches: %w", err)
			}
			fmt.Println()
			fmt.Println("Worker caches:")
			if len(names) == 0 {
				fmt.Println("  (none)")
			}
			current := hxcommunity.WorkerConfig{Version: cfg.CacheVersion}.CacheName()
			for _, name := range names {
				marker := ""
				if name == current {
					marker = " (current)"
				}
				fmt.Printf("  %s%s\n", name, marker)
			}
			return nil
		})
	},
}
