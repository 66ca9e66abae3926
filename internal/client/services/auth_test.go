package services

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/dmitrijs2005/zkvault/internal/client/client"
	"github.com/dmitrijs2005/zkvault/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	salt    string
	saltErr error

	registerErr error
	loginErr    error
	logoutErr   error

	lastRegister client.RegisterRequest
	lastEmail    string
	lastHash     string
	lastDevice   client.Device
	loggedIn     bool
	revoked      string
}

func (f *fakeClient) GetSalt(_ context.Context, email string) (string, error) {
	f.lastEmail = email
	return f.salt, f.saltErr
}

func (f *fakeClient) Register(_ context.Context, r client.RegisterRequest) (*client.Tokens, error) {
	f.lastRegister = r
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.loggedIn = true
	return &client.Tokens{Token: "t"}, nil
}

func (f *fakeClient) Login(_ context.Context, email, authHash string, d client.Device) (*client.Tokens, error) {
	f.lastEmail, f.lastHash, f.lastDevice = email, authHash, d
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.loggedIn = true
	return &client.Tokens{Token: "t"}, nil
}

func (f *fakeClient) Logout(context.Context) error {
	f.loggedIn = false
	return f.logoutErr
}

func (f *fakeClient) Heartbeat(context.Context) (*client.Heartbeat, error) {
	return &client.Heartbeat{SessionID: "s-1"}, nil
}

func (f *fakeClient) Sessions(context.Context) (*client.SessionList, error) {
	return &client.SessionList{MaxDevices: 3}, nil
}

func (f *fakeClient) RevokeSession(_ context.Context, id string) error {
	f.revoked = id
	return nil
}

func (f *fakeClient) LoggedIn() bool { return f.loggedIn }

// fastKeys swaps in a deterministic cheap derivation.
func fastKeys(t *testing.T) {
	t.Helper()
	orig := deriveKeys
	deriveKeys = func(password []byte, email, salt string) (*cryptox.Keys, error) {
		if _, err := hex.DecodeString(salt); err != nil || salt == "" {
			return nil, cryptox.ErrInvalidSalt
		}
		key := make([]byte, cryptox.KeySize)
		copy(key, password)
		return &cryptox.Keys{AuthHash: hex.EncodeToString([]byte(email + string(password))), EncryptionKey: key}, nil
	}
	t.Cleanup(func() { deriveKeys = orig })
}

func TestRegister_SendsDerivedValuesOnly(t *testing.T) {
	fastKeys(t)
	fc := &fakeClient{}
	s := NewAuthService(fc, "laptop").(*authService)

	require.NoError(t, s.Register(context.Background(), "alice@example.com", []byte("pw"), "Alice", "INV-1"))

	r := fc.lastRegister
	assert.Equal(t, "alice@example.com", r.Email)
	assert.Len(t, r.Salt, 64)
	assert.Equal(t, hex.EncodeToString([]byte("alice@example.compw")), r.AuthHash)
	assert.Equal(t, "INV-1", r.InviteCode)
	assert.Equal(t, "laptop", r.DeviceName)
	assert.NotContains(t, r.EncryptedNickname, hex.EncodeToString([]byte("Alice")))

	nick, err := cryptox.Decrypt(r.EncryptedNickname, r.NicknameIV, s.keys.EncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, "Alice", string(nick))
}

func TestRegister_ServerErrorDropsKeys(t *testing.T) {
	fastKeys(t)
	fc := &fakeClient{registerErr: errors.New("REGISTRATION_FAILED")}
	s := NewAuthService(fc, "laptop").(*authService)

	err := s.Register(context.Background(), "alice@example.com", []byte("pw"), "", "")
	assert.Error(t, err)
	assert.Nil(t, s.keys)
	assert.Empty(t, fc.lastRegister.EncryptedNickname)
}

func TestLogin_UsesServerSalt(t *testing.T) {
	fastKeys(t)
	fc := &fakeClient{salt: "cdcd"}
	s := NewAuthService(fc, "laptop")

	require.NoError(t, s.Login(context.Background(), "bob@example.com", []byte("pw")))
	assert.Equal(t, hex.EncodeToString([]byte("bob@example.compw")), fc.lastHash)
	assert.Equal(t, "cli", fc.lastDevice.DeviceType)
	assert.NotEmpty(t, fc.lastDevice.DeviceID)
	assert.True(t, s.LoggedIn())
}

func TestLogin_Errors(t *testing.T) {
	fastKeys(t)
	ctx := context.Background()

	s := NewAuthService(&fakeClient{saltErr: client.ErrUnavailable}, "x")
	assert.ErrorIs(t, s.Login(ctx, "a@b.cd", []byte("pw")), client.ErrUnavailable)

	s = NewAuthService(&fakeClient{salt: "zz"}, "x")
	assert.ErrorIs(t, s.Login(ctx, "a@b.cd", []byte("pw")), cryptox.ErrInvalidSalt)

	loginErr := &client.APIError{Status: 401, Code: "LOGIN_FAILED"}
	svc := NewAuthService(&fakeClient{salt: "cdcd", loginErr: loginErr}, "x").(*authService)
	assert.ErrorIs(t, svc.Login(ctx, "a@b.cd", []byte("pw")), client.ErrUnauthorized)
	assert.Nil(t, svc.keys)
}

func TestLogout_WipesKeys(t *testing.T) {
	fastKeys(t)
	fc := &fakeClient{salt: "cdcd"}
	s := NewAuthService(fc, "x").(*authService)
	require.NoError(t, s.Login(context.Background(), "a@b.cd", []byte("pw")))

	key := s.keys.EncryptionKey
	require.NoError(t, s.Logout(context.Background()))
	assert.Nil(t, s.keys)
	assert.Equal(t, make([]byte, len(key)), key)
	assert.False(t, s.LoggedIn())
}

func TestPassThrough(t *testing.T) {
	fc := &fakeClient{}
	s := NewAuthService(fc, "x")
	ctx := context.Background()

	hb, err := s.Heartbeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-1", hb.SessionID)

	l, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, l.MaxDevices)

	require.NoError(t, s.RevokeSession(ctx, "s-9"))
	assert.Equal(t, "s-9", fc.revoked)
}
