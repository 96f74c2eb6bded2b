package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

var (
	password     string
	signupEmail  string
	signupPic    string
	profileBio   string
	profilePic   string
	profileStats bool
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(unfollowCmd)

	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when omitted)")
	signupCmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when omitted)")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "Email address")
	signupCmd.Flags().StringVar(&signupPic, "pic", "", "Profile picture URL")
	profileCmd.Flags().StringVar(&profileBio, "bio", "", "New bio")
	profileCmd.Flags().StringVar(&profilePic, "pic", "", "New profile picture URL")
	profileCmd.Flags().BoolVar(&profileStats, "stats", false, "Include follower counts")
}

// readPassword returns the --password flag or the first line of stdin.
func readPassword() (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and remember the user locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readPassword()
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			u, err := app.Login(ctx, args[0], pw)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(u)
			}
			fmt.Printf("Signed in as %s (%s)\n", u.Username, u.Role)
			return nil
		})
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup <username>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readPassword()
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			u, err := app.Signup(ctx, args[0], signupEmail, pw, signupPic)
			if err != nil {
				return err
			}
			fmt.Printf("Welcome, %s\n", u.Username)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the signed-in user; AI chats and settings are kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			app.Logout()
			fmt.Println("Signed out")
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile [username]",
	Short: "Show a profile, or update your own with --bio/--pic",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if cmd.Flags().Changed("bio") || cmd.Flags().Changed("pic") {
				me, err := requireUser(app)
				if err != nil {
					return err
				}
				bio := valueOrDefault(profileBio, me.Bio)
				pic := valueOrDefault(profilePic, me.Pic)
				if err := app.UpdateProfile(ctx, bio, pic); err != nil {
					return err
				}
				fmt.Println("Profile updated")
				return nil
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				me, err := requireUser(app)
				if err != nil {
					return err
				}
				name = me.Username
			}
			u, err := app.Client.Users.Lookup(ctx, name)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", name, err)
			}
			if profileStats {
				stats := app.Client.Users.SocialStats(ctx, name)
				u.Followers, u.Following, u.Posts = stats.Followers, stats.Following, stats.Posts
			}
			if jsonOutput {
				return printJSON(u)
			}
			fmt.Printf("Username: %s\n", u.Username)
			fmt.Printf("Role:     %s\n", u.Role)
			fmt.Printf("Bio:      %s\n", valueOrDefault(u.Bio, "(none)"))
			if profileStats {
				fmt.Printf("Followers: %d  Following: %d  Posts: %d\n", u.Followers, u.Following, u.Posts)
			}
			return nil
		})
	},
}

var followCmd = &cobra.Command{
	Use:   "follow <username>",
	Short: "Follow a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if err := app.Follow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Following %s\n", args[0])
			return nil
		})
	},
}

var unfollowCmd = &cobra.Command{
	Use:   "unfollow <username>",
	Short: "Unfollow a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if err := app.Unfollow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Unfollowed %s\n", args[0])
			return nil
		})
	},
}
