// Package services contains application services for the zkvault CLI. The
// auth service derives keys locally and only ever hands the server the
// auth hash and salt.
package services

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dmitrijs2005/zkvault/internal/client/client"
	"github.com/dmitrijs2005/zkvault/internal/cryptox"
	"github.com/google/uuid"
)

// AuthService defines the account and session operations of the CLI.
type AuthService interface {
	Register(ctx context.Context, email string, password []byte, nickname, inviteCode string) error
	Login(ctx context.Context, email string, password []byte) error
	Logout(ctx context.Context) error
	Heartbeat(ctx context.Context) (*client.Heartbeat, error)
	Sessions(ctx context.Context) (*client.SessionList, error)
	RevokeSession(ctx context.Context, id string) error
	LoggedIn() bool
	Close()
}

// deriveKeys is a seam so tests avoid the full PBKDF2 cost.
var deriveKeys = cryptox.DeriveKeys

type authService struct {
	client client.Client
	device client.Device
	keys   *cryptox.Keys
}

// NewAuthService builds the service for one CLI process. The device id is
// generated per process.
func NewAuthService(c client.Client, deviceName string) AuthService {
	return &authService{
		client: c,
		device: client.Device{
			DeviceID:   uuid.NewString(),
			DeviceName: deviceName,
			DeviceType: "cli",
			OS:         runtime.GOOS,
		},
	}
}

func (a *authService) setKeys(k *cryptox.Keys) {
	if a.keys != nil {
		a.keys.Wipe()
	}
	a.keys = k
}

// Register creates an account with a fresh salt. A non-empty nickname is
// encrypted with the derived encryption key before it leaves the process.
func (a *authService) Register(ctx context.Context, email string, password []byte, nickname, inviteCode string) error {
	salt, err := cryptox.NewSalt()
	if err != nil {
		return err
	}

	keys, err := deriveKeys(password, email, salt)
	if err != nil {
		return err
	}

	req := client.RegisterRequest{
		Email:      email,
		AuthHash:   keys.AuthHash,
		Salt:       salt,
		InviteCode: inviteCode,
		Device:     a.device,
	}
	if nickname != "" {
		req.EncryptedNickname, req.NicknameIV, err = cryptox.Encrypt([]byte(nickname), keys.EncryptionKey)
		if err != nil {
			keys.Wipe()
			return fmt.Errorf("encrypt nickname: %w", err)
		}
	}

	if _, err := a.client.Register(ctx, req); err != nil {
		keys.Wipe()
		return err
	}

	a.setKeys(keys)
	return nil
}

// Login fetches the salt, derives the auth hash and opens a session.
func (a *authService) Login(ctx context.Context, email string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, email)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}

	keys, err := deriveKeys(password, email, salt)
	if err != nil {
		return err
	}

	if _, err := a.client.Login(ctx, email, keys.AuthHash, a.device); err != nil {
		keys.Wipe()
		return fmt.Errorf("login error: %w", err)
	}

	a.setKeys(keys)
	return nil
}

func (a *authService) Logout(ctx context.Context) error {
	defer a.setKeys(nil)
	return a.client.Logout(ctx)
}

func (a *authService) Heartbeat(ctx context.Context) (*client.Heartbeat, error) {
	return a.client.Heartbeat(ctx)
}

func (a *authService) Sessions(ctx context.Context) (*client.SessionList, error) {
	return a.client.Sessions(ctx)
}

func (a *authService) RevokeSession(ctx context.Context, id string) error {
	return a.client.RevokeSession(ctx, id)
}

func (a *authService) LoggedIn() bool {
	return a.client.LoggedIn()
}

// Close wipes the in-memory keys.
func (a *authService) Close() {
	a.setKeys(nil)
}
