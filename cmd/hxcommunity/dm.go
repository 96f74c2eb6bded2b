package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/havenova-x/hxcommunity"
	"github.com/spf13/cobra"
)

var (
	dmMedia       string
	messagesWatch bool
)

func init() {
	rootCmd.AddCommand(dmCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(unsendCmd)

	dmCmd.Flags().StringVar(&dmMedia, "media", "", "Media URL to attach")
	messagesCmd.Flags().BoolVarP(&messagesWatch, "watch", "w", false, "Keep polling for new messages")
}

var dmCmd = &cobra.Command{
	Use:   "dm <username> <text>",
	Short: "Send a direct message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			app.State.SetCurrentChatUser(args[0])
			m, err := app.Mutations.SendMessage(ctx, args[0], args[1], dmMedia, "")
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(m)
			}
			fmt.Printf("Sent to %s\n", m.Receiver)
			return nil
		})
	},
}

var unsendCmd = &cobra.Command{
	Use:   "unsend <username> <message-id>",
	Short: "Delete a message from a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *hxcommunity.App) error {
			if _, err := app.OpenConversation(ctx, args[0]); err != nil {
				return err
			}
			if _, err := app.Mutations.DeleteMessage(ctx, args[1]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[1])
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <username>",
	Short: "Show the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		other := args[0]
		app, _, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		me, err := requireUser(app)
		if err != nil {
			return err
		}
		p := newMessagePrinter(me.Username)

		if !messagesWatch {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			msgs, err := app.OpenConversation(ctx, other)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(msgs)
			}
			p.print(msgs)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app.State.SetCurrentChatUser(other)
		unsubscribe := app.State.Subscribe(func(s hxcommunity.Snapshot) {
			if s.CurrentChatUser == other {
				p.print(s.Messages)
			}
		})
		defer unsubscribe()

		poller := app.WatchConversation(other)
		poller.Start(ctx)
		fmt.Fprintf(os.Stderr, "Watching conversation with %s (Ctrl-C to stop)\n", other)
		<-ctx.Done()
		poller.Stop()
		return nil
	},
}

// messagePrinter prints each message once.
type messagePrinter struct {
	me string

	mu   sync.Mutex
	seen map[string]bool
}

func newMessagePrinter(me string) *messagePrinter {
	return &messagePrinter{me: me, seen: make(map[string]bool)}
}

func (p *messagePrinter) print(msgs []hxcommunity.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, m := range msgs {
		key := m.ID
		if key == "" {
			key = m.Sender + "|" + m.Timestamp + "|" + m.Content
		}
		if p.seen[key] {
			continue
		}
		p.seen[key] = true

		who := m.Sender
		if who == p.me {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", hxcommunity.FormatTimestamp(m.Timestamp, now), who, m.Content)
		if m.Media != "" {
			fmt.Printf("    %s: %s\n", m.MediaType, m.Media)
		}
	}
}
