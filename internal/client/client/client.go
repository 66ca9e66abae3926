package client

import (
	"context"
	"time"
)

// Device describes this installation to the server.
type Device struct {
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	OS         string `json:"os,omitempty"`
}

type RegisterRequest struct {
	Email             string `json:"email"`
	AuthHash          string `json:"auth_hash"`
	Salt              string `json:"salt"`
	InviteCode        string `json:"invite_code,omitempty"`
	EncryptedNickname string `json:"encrypted_nickname,omitempty"`
	NicknameIV        string `json:"nickname_iv,omitempty"`
	Device
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Tokens is what register, login and refresh hand back.
type Tokens struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type Session struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	IPAddress  string    `json:"ip_address"`
	Location   string    `json:"location"`
	IsActive   bool      `json:"is_active"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type SessionList struct {
	Sessions   []Session `json:"sessions"`
	MaxDevices int       `json:"max_devices"`
}

type Heartbeat struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// Client is the API contract used by the CLI services.
type Client interface {
	GetSalt(ctx context.Context, email string) (string, error)
	Register(ctx context.Context, req RegisterRequest) (*Tokens, error)
	Login(ctx context.Context, email, authHash string, device Device) (*Tokens, error)
	Logout(ctx context.Context) error
	Heartbeat(ctx context.Context) (*Heartbeat, error)
	Sessions(ctx context.Context) (*SessionList, error)
	RevokeSession(ctx context.Context, id string) error
	LoggedIn() bool
}
