package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/zkvault/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for email, master password, optional nickname and invite
// code, then creates the account. The password is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	nickname, err := getSimpleText(a.reader, "Nickname (optional, stored encrypted)", a.out)
	if err != nil {
		return err
	}
	invite, err := getSimpleText(a.reader, "Invite code (leave empty if none)", a.out)
	if err != nil {
		return err
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.authService.Register(ctx, email, password, nickname, invite); err != nil {
		return err
	}

	a.userName = email
	fmt.Fprintln(a.out, "Registered and logged in.")
	return nil
}

// Login prompts for credentials and opens a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.authService.Login(ctx, email, password); err != nil {
		return err
	}

	a.userName = email
	fmt.Fprintln(a.out, "Login successful.")
	return nil
}

// Logout ends the current session on the server and locally.
func (a *App) Logout(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	err := a.authService.Logout(ctx)
	a.userName = ""
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
