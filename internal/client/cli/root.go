package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/zkvault/internal/client/client"
)

func (a *App) getStatus() string {
	if a.userName == "" || !a.isLoggedIn() {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}

// report prints a command error in a user-facing form.
func (a *App) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, client.ErrSessionRevoked) {
		a.userName = ""
		fmt.Fprintln(a.out, "Your session was revoked or has expired. Please log in again.")
		return
	}
	fmt.Fprintln(a.out, "Error:", err)
}

// Root runs the REPL until EOF or exit.
func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "zkvault CLI (type 'help' for commands)")

	for {
		fmt.Fprintf(a.out, "zkvault %s> ", a.getStatus())
		line, err := a.reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: sessions, revoke <id>, ping, logout, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: register, login, exit")
			}
		case "register":
			a.report(a.Register(ctx))
		case "login":
			a.report(a.Login(ctx))
		case "logout":
			a.report(a.Logout(ctx))
		case "sessions":
			a.report(a.listSessions(ctx))
		case "revoke":
			if len(args) != 1 {
				fmt.Fprintln(a.out, "Usage: revoke <session id>")
				continue
			}
			a.report(a.revokeSession(ctx, args[0]))
		case "ping":
			a.report(a.heartbeat(ctx))
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}
