package main

import (
	"context"
	"fmt"
	"time"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

var (
	aiChatID  string
	aiNewChat bool
	aiTone    string
)

func init() {
	rootCmd.AddCommand(aiCmd)
	aiCmd.AddCommand(aiAskCmd)
	aiCmd.AddCommand(aiChatsCmd)
	aiCmd.AddCommand(aiDeleteCmd)
	aiCmd.AddCommand(aiRewriteCmd)

	aiAskCmd.Flags().StringVar(&aiChatID, "chat", "", "Chat id to continue (defaults to the current chat)")
	aiAskCmd.Flags().BoolVar(&aiNewChat, "new", false, "Start a new chat")
	aiRewriteCmd.Flags().StringVar(&aiTone, "tone", string(hxcommunity.ToneProfessional), "professional, casual, funny or poetic")
}

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Talk to the Dechris assistant",
}

var aiAskCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Ask the assistant; chats are kept locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			id := aiChatID
			if id == "" && !aiNewChat {
				id = app.State.CurrentAIChat()
			}
			if _, ok := app.State.AIChat(id); !ok || aiNewChat {
				id = app.Assistant.NewChat().ID
			}
			app.State.SetCurrentAIChat(id)

			reply, err := app.Assistant.Ask(ctx, id, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(reply)
			}
			fmt.Println(reply.Content)
			return nil
		})
	},
}

var aiChatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List saved chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			chats := app.State.AIChats()
			if jsonOutput {
				return printJSON(chats)
			}
			if len(chats) == 0 {
				fmt.Println("No chats.")
				return nil
			}
			current := app.State.CurrentAIChat()
			now := time.Now()
			for _, c := range chats {
				marker := " "
				if c.ID == current {
					marker = "*"
				}
				fmt.Printf("%s %s  %-34s %3d messages  %s\n", marker, c.ID, c.Title, len(c.Messages), hxcommunity.FormatTimestamp(c.CreatedAt, now))
			}
			return nil
		})
	},
}

var aiDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if _, ok := app.State.AIChat(args[0]); !ok {
				return fmt.Errorf("chat %s: %w", args[0], hxcommunity.ErrNotFound)
			}
			app.Assistant.Delete(args[0])
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var aiRewriteCmd = &cobra.Command{
	Use:   "rewrite <text>",
	Short: "Rewrite a draft in another tone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			fmt.Println(app.Assistant.Rewrite(ctx, args[0], hxcommunity.Tone(aiTone)))
			return nil
		})
	},
}
