package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/directory"
	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/session"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "ChatterBox server base URL")
		username  = flag.String("username", "", "account name (required)")
		password  = flag.String("password", "", "account password (required)")
		register  = flag.Bool("register", false, "create the account before signing in")
	)
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "--username and --password are required")
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()

	ctx := context.Background()

	client := directory.NewClient(*serverURL)

	var err error
	if *register {
		_, err = client.Register(ctx, *username, *password)
	} else {
		_, err = client.Login(ctx, *username, *password)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign-in failed:", err)
		os.Exit(1)
	}

	dialer := session.NewWebsocketDialer(websocketBase(*serverURL))
	mgr := session.NewManager(dialer, client, client, logger,
		session.WithObserver(consoleObserver{}))
	defer mgr.Logout()

	user, _ := client.Identity()
	fmt.Printf("signed in as %s (id %d)\n", user.Username, user.ID)
	fmt.Println("commands: /rooms, /join <id>, /who, /create <name> <user id...>,")
	fmt.Println("          /invite <chat id> <user id...>, /search <query>, /quit;")
	fmt.Println("anything else is sent to the room")

	repl(ctx, client, mgr, os.Stdin, os.Stdout)
}

// websocketBase rewrites an http(s) base URL to its ws(s) equivalent.
func websocketBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// parseIDs converts command arguments to user/chat ids.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an id: %s", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func repl(ctx context.Context, client *directory.Client, mgr *session.Manager, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return

		case "/rooms":
			chats, err := client.ListRoomsForUser(ctx, 0)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			if len(chats) == 0 {
				fmt.Fprintln(out, "no chats yet")
				continue
			}
			for _, chat := range chats {
				printChat(out, chat)
			}

		case "/join":
			ids, err := parseIDs(fields[1:])
			if err != nil || len(ids) != 1 {
				fmt.Fprintln(out, "usage: /join <chat id>")
				continue
			}
			if err := mgr.SelectRoom(ctx, ids[0]); err != nil {
				fmt.Fprintln(out, "error:", err)
			}

		case "/who":
			members := mgr.Presence().Current(ctx)
			if len(members) == 0 {
				fmt.Fprintln(out, "nobody here yet")
				continue
			}
			for _, member := range members {
				fmt.Fprintf(out, "  %s (id %d)\n", member.Username, member.ID)
			}

		case "/create":
			if len(fields) < 3 {
				fmt.Fprintln(out, "usage: /create <name> <user id...>")
				continue
			}
			ids, err := parseIDs(fields[2:])
			if err != nil {
				fmt.Fprintln(out, "usage: /create <name> <user id...>")
				continue
			}
			chat, err := client.CreateChat(ctx, fields[1], len(ids) > 1, ids)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printChat(out, *chat)

		case "/invite":
			ids, err := parseIDs(fields[1:])
			if err != nil || len(ids) < 2 {
				fmt.Fprintln(out, "usage: /invite <chat id> <user id...>")
				continue
			}
			chat, err := client.AddChatMembers(ctx, ids[0], ids[1:])
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printChat(out, *chat)

		case "/search":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: /search <query>")
				continue
			}
			users, err := client.SearchUsers(ctx, fields[1])
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			if len(users) == 0 {
				fmt.Fprintln(out, "no matches")
				continue
			}
			for _, user := range users {
				fmt.Fprintf(out, "  %s (id %d)\n", user.Username, user.ID)
			}

		default:
			if strings.HasPrefix(line, "/") {
				fmt.Fprintln(out, "unknown command:", fields[0])
				continue
			}
			if err := mgr.SendChatMessage(line); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}
	}
}

func printChat(out io.Writer, chat models.Chat) {
	kind := "dm"
	if chat.IsGroup {
		kind = "group"
	}
	fmt.Fprintf(out, "  %d  %s (%s, %d members)\n", chat.ID, chat.Name, kind, len(chat.MemberIDs))
}

// consoleObserver prints pushed messages and state transitions.
type consoleObserver struct{}

func (consoleObserver) MessageReceived(msg session.DisplayMessage) {
	fmt.Printf("\r%s: %s\n> ", msg.Author, msg.Content)
}

func (consoleObserver) StateChanged(state session.State) {
	fmt.Printf("\r[%s]\n> ", state)
}
