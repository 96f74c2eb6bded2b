package main

import (
	"context"
	"fmt"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

var cacheEntries bool

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInstallCmd)

	cacheListCmd.Flags().BoolVar(&cacheEntries, "entries", false, "List the URLs stored in each cache")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the offline worker caches",
}

func cacheStorage(app *hxcommunity.App) (*hxcommunity.SQLiteCacheStorage, error) {
	db, err := app.DB()
	if err != nil {
		return nil, err
	}
	return hxcommunity.NewSQLiteCacheStorage(db), nil
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache generations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			cs, err := cacheStorage(app)
			if err != nil {
				return err
			}
			names, err := cs.Keys(ctx)
			if err != nil {
				return err
			}
			if jsonOutput && !cacheEntries {
				return printJSON(names)
			}
			out := make(map[string][]string, len(names))
			for _, name := range names {
				if !cacheEntries {
					fmt.Println(name)
					continue
				}
				c, err := cs.Open(ctx, name)
				if err != nil {
					return err
				}
				keys, err := c.Keys(ctx)
				if err != nil {
					return err
				}
				out[name] = keys
				if !jsonOutput {
					fmt.Printf("%s (%d entries)\n", name, len(keys))
					for _, k := range keys {
						fmt.Printf("  %s\n", k)
					}
				}
			}
			if jsonOutput {
				return printJSON(out)
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [name]",
	Short: "Delete one cache generation, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			cs, err := cacheStorage(app)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				if names, err = cs.Keys(ctx); err != nil {
					return err
				}
			}
			for _, name := range names {
				ok, err := cs.Delete(ctx, name)
				if err != nil {
					return fmt.Errorf("delete %s: %w", name, err)
				}
				if ok {
					fmt.Printf("Deleted %s\n", name)
				} else {
					fmt.Printf("No cache named %s\n", name)
				}
			}
			return nil
		})
	},
}

var cacheInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and activate the worker for the configured cache version",
	Long:  "Precache the app shell and delete every other cache generation.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if err := app.Start(ctx); err != nil {
				return err
			}
			w := app.Registration.Active()
			fmt.Printf("Worker %s is %s\n", w.CacheName(), w.Phase())
			return nil
		})
	},
}
