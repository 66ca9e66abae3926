package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// listSessions prints every session of the account, marking the current one.
func (a *App) listSessions(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	l, err := a.authService.Sessions(ctx)
	if err != nil {
		return err
	}

	active := 0
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDEVICE\tIP\tCREATED\tSTATUS")
	for _, s := range l.Sessions {
		mark := ""
		if s.IsCurrent {
			mark = "*"
		}
		status := "revoked"
		if s.IsActive && time.Now().Before(s.ExpiresAt) {
			status = "active"
			active++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, s.ID, s.DeviceName, s.IPAddress, s.CreatedAt.Local().Format(time.DateTime), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d of %d devices in use\n", active, l.MaxDevices)
	return nil
}

func (a *App) revokeSession(ctx context.Context, id string) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.authService.RevokeSession(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Session revoked.")
	return nil
}

func (a *App) heartbeat(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	hb, err := a.authService.Heartbeat(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Session %s is alive.\n", hb.SessionID)
	return nil
}
