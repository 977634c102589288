package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"messenger/internal/client"
	"messenger/internal/models"

	"github.com/spf13/cobra"
)

var token string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the chat",
	Long: `Join the chat. Lines you type are sent to the current room.

Commands:
  /join <user>  private conversation with <user>
  /global       back to the global room
  /who          list users and who is online
  /typing       tell the current private room you are typing
  /quit         leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&token, "token", "", "session token from login (skips the password)")
}

// console serializes writes from the event loop and the input loop.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	api := client.NewAPI(serverURL)

	name := strings.TrimSpace(username)
	if token == "" {
		u, p, err := credentials()
		if err != nil {
			return err
		}
		resp, err := api.Login(ctx, u, p)
		if err != nil {
			return err
		}
		token, name = resp.Token, resp.User.Username
	} else if name == "" {
		return errors.New("--username is required with --token")
	}

	dialer, err := client.NewWebSocketDialer(serverURL, token)
	if err != nil {
		return err
	}
	session := client.NewSession(name, dialer, client.WithReconnectDelay(reconnectDelay))
	defer session.Close()

	out := &console{out: cmd.OutOrStdout()}
	if err := session.Start(); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return err
		}
		out.printf("⚠️ %v", err)
	}
	out.printf("Logged in as %s. Global Chat. Type /quit to leave.", name)
	showUsers(ctx, api, name, out)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ev := range session.Events() {
			printEvent(out, ev)
		}
	}()
	go func() {
		defer wg.Done()
		for st := range session.StatusUpdates() {
			if st.State != client.Connected && st.State != client.GivenUp {
				out.printf("⚠️ %s", st)
			}
		}
	}()

	readInput(ctx, cmd.InOrStdin(), session, api, out)

	session.Close()
	wg.Wait()
	return nil
}

func readInput(ctx context.Context, in io.Reader, session *client.Session, api *client.API, out *console) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/global":
			if err := session.Join(models.GlobalRoom); err != nil {
				out.printf("⚠️ %v", err)
				continue
			}
			out.printf("Global Chat")
		case strings.HasPrefix(line, "/join"):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/join"))
			if peer == "" {
				out.printf("usage: /join <user>")
				continue
			}
			if peer == session.Username() {
				continue
			}
			if err := session.Join(peer); err != nil {
				out.printf("⚠️ %v", err)
				continue
			}
			out.printf("Private Chat with %s", peer)
		case line == "/who":
			showUsers(ctx, api, session.Username(), out)
		case line == "/typing":
			if err := session.Typing(); err != nil {
				out.printf("⚠️ %v", err)
			}
		default:
			sendLine(session, line, out)
		}
	}
}

func sendLine(session *client.Session, line string, out *console) {
	err := session.Send(line)
	switch {
	case err == nil:
		out.printf("You: %s", line)
	case errors.Is(err, client.ErrNotConnected):
		out.printf("⚠️ Not connected to server!")
	default:
		out.printf("⚠️ Error sending message: %v", err)
	}
}

func showUsers(ctx context.Context, api *client.API, self string, out *console) {
	users, err := api.OnlineUsers(ctx)
	if err != nil {
		out.printf("⚠️ Could not fetch users: %v", err)
		return
	}
	var b strings.Builder
	b.WriteString("Users:")
	for _, u := range users {
		if u.Username == self {
			continue
		}
		mark := "○"
		if u.Online {
			mark = "●"
		}
		fmt.Fprintf(&b, " %s %s", mark, u.Username)
	}
	out.printf("%s", b.String())
}

func printEvent(out *console, ev models.OutboundEvent) {
	switch ev.Event {
	case models.EventTyping:
		out.printf("%s is typing...", ev.Sender)
	default:
		if ev.Recipient != "" {
			out.printf("[%s] %s: %s", ev.Recipient, ev.Sender, ev.Content)
			return
		}
		out.printf("%s: %s", ev.Sender, ev.Content)
	}
}
