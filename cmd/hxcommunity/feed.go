package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

var (
	feedLimit     int
	postMedia     string
	postMediaType string
)

func init() {
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(uploadCmd)

	feedCmd.Flags().IntVarP(&feedLimit, "limit", "n", 20, "Maximum number of posts to show (0 for all)")
	postCmd.Flags().StringVar(&postMedia, "media", "", "Media URL, or a local file to upload first")
	postCmd.Flags().StringVar(&postMediaType, "media-type", "", "Media type (image, audio or video); guessed when omitted")
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Refresh and show the feed",
	Long:  "Fetch the feed and show the newest posts. When the backend cannot be reached the last fetched copy is shown.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			posts, err := app.RefreshFeed(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Showing cached feed: %v\n", err)
			}
			if feedLimit > 0 && len(posts) > feedLimit {
				posts = posts[:feedLimit]
			}
			if jsonOutput {
				return printJSON(posts)
			}
			if len(posts) == 0 {
				fmt.Println("No posts.")
				return nil
			}
			now := time.Now()
			for _, p := range posts {
				liked := " "
				if app.State.IsLiked(p.PID) {
					liked = "*"
				}
				fmt.Printf("%s [%s] %s (%s) %s\n", liked, p.PID, p.Author, p.Role, hxcommunity.FormatTimestamp(p.Timestamp, now))
				if p.Content != "" {
					fmt.Printf("    %s\n", hxcommunity.TruncateText(strings.ReplaceAll(p.Content, "\n", " "), 120))
				}
				if p.Media != "" {
					fmt.Printf("    %s: %s\n", p.MediaType, p.Media)
				}
				fmt.Printf("    %d likes, %d comments\n", p.Likes, p.CommentCount)
			}
			return nil
		})
	},
}

var postCmd = &cobra.Command{
	Use:   "post <content>",
	Short: "Publish a post",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := ""
		if len(args) == 1 {
			content = args[0]
		}
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			media := postMedia
			if media != "" && !strings.HasPrefix(media, "http://") && !strings.HasPrefix(media, "https://") {
				u, err := app.Client.Media.UploadFile(ctx, media)
				if err != nil {
					return fmt.Errorf("upload media: %w", err)
				}
				media = u
			}
			p, err := app.Mutations.CreatePost(ctx, content, media, postMediaType)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(p)
			}
			fmt.Printf("Posted %s\n", p.PID)
			return nil
		})
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Like a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			res, err := app.Mutations.Like(ctx, args[0])
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Println("Already liked")
				return nil
			}
			if p, ok := app.State.Post(args[0]); ok {
				fmt.Printf("Liked %s (%d likes)\n", p.PID, p.Likes)
				return nil
			}
			fmt.Printf("Liked %s\n", args[0])
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <post-id>",
	Short: "Delete one of your posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if _, err := app.Mutations.DeletePost(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <text>",
	Short: "Comment on a post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if _, err := app.Mutations.AddComment(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Comment added")
			return nil
		})
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List community members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			users, err := app.RefreshUsers(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(users)
			}
			for _, u := range users {
				fmt.Printf("%-20s %-6s %s\n", u.Username, u.Role, hxcommunity.TruncateText(u.Bio, 60))
			}
			return nil
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			u, err := app.Client.Media.UploadFile(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(hxcommunity.MediaLink{URL: u, Type: hxcommunity.MediaTypeOf(u)})
			}
			fmt.Println(u)
			return nil
		})
	},
}
