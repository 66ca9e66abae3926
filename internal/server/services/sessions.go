package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/auth"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/users"
	"github.com/google/uuid"
)

// LegacyDeviceName marks sessions materialised for tokens that predate
// session binding.
const LegacyDeviceName = "Legacy device (migrated)"

// legacyNamespace scopes the deterministic ids of migrated legacy sessions.
var legacyNamespace = uuid.MustParse("6f1c2a7e-3b5d-4c8e-9a0f-2d4b6e8c1a3f")

// Principal is the authenticated caller behind a bearer token.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}

// IssuedSession is what a successful login or registration hands back.
type IssuedSession struct {
	Session      *models.Session
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// SessionInfo is one row of the device-management listing.
type SessionInfo struct {
	*models.Session
	IsCurrent bool
}

type SessionList struct {
	Sessions   []SessionInfo
	MaxDevices int
}

type Heartbeat struct {
	UserID    string
	SessionID string
	Timestamp time.Time
}

// SessionService binds access tokens to revocable server-side sessions and
// enforces the per-user device limit.
type SessionService struct {
	sessions   sessions.Store
	users      users.Repository
	auth       *AuthService
	maxDevices int
	sessionTTL time.Duration
	now        func() time.Time
	logger     logging.Logger
}

type SessionOption func(*SessionService)

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(m repomanager.RepositoryManager, a *AuthService, cfg *config.Config, logger logging.Logger, opts ...SessionOption) *SessionService {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &SessionService{
		sessions:   m.Sessions(),
		users:      m.Users(),
		auth:       a,
		maxDevices: cfg.MaxDevices,
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
		logger:     logger.With("module", "sessions"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxDevices is the configured limit of concurrently active sessions.
func (s *SessionService) MaxDevices() int {
	return s.maxDevices
}

// newRefreshToken concatenates two random v4 uuids (244 random bits).
func newRefreshToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Open creates a session for user and issues its tokens. When the user is at
// the device limit exactly one session, the oldest active one, is revoked
// first. Admission is serialised per user so concurrent logins cannot evict
// more than one session each.
func (s *SessionService) Open(ctx context.Context, user *models.User, device models.Device) (*IssuedSession, error) {
	now := s.now()
	refreshToken := newRefreshToken()

	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Device:       device,
		IsActive:     true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
		RefreshToken: &refreshToken,
	}

	err := s.sessions.WithUserLock(ctx, user.ID, func(ctx context.Context, repo sessions.Repository) error {
		n, err := repo.CountActive(ctx, user.ID, now)
		if err != nil {
			return err
		}
		if n >= s.maxDevices {
			evicted, err := repo.RevokeOldestSession(ctx, user.ID, now)
			switch {
			case err == nil:
				s.logger.Info(ctx, "session evicted by device limit", "user_id", user.ID, "session_id", evicted)
			case errors.Is(err, common.ErrorNotFound):
			default:
				return err
			}
		}
		return repo.Create(ctx, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("error opening session: %w", err)
	}

	token, err := s.auth.IssueToken(user, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("error signing token: %w", err)
	}

	s.logger.Debug(ctx, "session opened", "user_id", user.ID, "session_id", sess.ID)

	return &IssuedSession{
		Session:      sess,
		AccessToken:  token,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.auth.AccessTTL().Seconds()),
	}, nil
}

// Refresh signs a new access token for the session owning refreshToken. The
// session id, refresh token and expires_at stay the same.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (string, int, error) {
	if refreshToken == "" {
		return "", 0, common.ErrInvalidRefreshToken
	}

	sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", 0, common.ErrInvalidRefreshToken
		}
		return "", 0, fmt.Errorf("error finding session: %w", err)
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", 0, common.ErrInvalidRefreshToken
		}
		return "", 0, fmt.Errorf("error fetching user: %w", err)
	}

	token, err := s.auth.IssueToken(user, sess.ID)
	if err != nil {
		return "", 0, fmt.Errorf("error signing token: %w", err)
	}

	return token, int(s.auth.AccessTTL().Seconds()), nil
}

// Authenticate resolves a bearer token to a Principal. Tokens without a jti
// are migrated to a synthetic session on first sight. A session that is
// missing, revoked, expired or owned by someone else yields
// common.ErrSessionInvalid.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.auth.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	sessionID := claims.SessionID()
	if sessionID == "" {
		sessionID, err = s.migrateLegacy(ctx, claims)
		if err != nil {
			return nil, err
		}
	}

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, fmt.Errorf("error finding session: %w", err)
	}

	if sess.UserID != claims.UserID || !sess.Usable(s.now()) {
		return nil, common.ErrSessionInvalid
	}

	return &Principal{UserID: claims.UserID, Email: claims.Email, SessionID: sess.ID}, nil
}

// legacySessionID derives the synthetic session id of a pre-session token
// from user id, exp and iat.
func legacySessionID(claims *auth.Claims) string {
	var exp, iat int64
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Unix()
	}
	name := claims.UserID + ":" + strconv.FormatInt(exp, 10) + ":" + strconv.FormatInt(iat, 10)
	return uuid.NewSHA1(legacyNamespace, []byte(name)).String()
}

func (s *SessionService) migrateLegacy(ctx context.Context, claims *auth.Claims) (string, error) {
	id := legacySessionID(claims)

	_, err := s.sessions.FindByID(ctx, id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("error finding session: %w", err)
	}

	if _, err := s.users.GetByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrSessionInvalid
		}
		return "", fmt.Errorf("error fetching user: %w", err)
	}

	// The row must outlive the token, otherwise cleanup would drop a revoked
	// row and the next request would migrate the token again.
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.After(expiresAt) {
		expiresAt = claims.ExpiresAt.Time
	}
	sess := &models.Session{
		ID:        id,
		UserID:    claims.UserID,
		Device:    models.Device{DeviceName: LegacyDeviceName, DeviceType: "legacy"},
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	err = s.sessions.Create(ctx, sess)
	switch {
	case err == nil:
		s.logger.Info(ctx, "legacy token migrated", "user_id", claims.UserID, "session_id", id)
	case errors.Is(err, common.ErrAlreadyExists):
		// another request migrated the same token first
	default:
		return "", fmt.Errorf("error creating legacy session: %w", err)
	}

	return id, nil
}

// Logout revokes the caller's own session.
func (s *SessionService) Logout(ctx context.Context, p *Principal) error {
	if p == nil || p.SessionID == "" {
		return common.ErrNoSession
	}
	if err := s.sessions.Revoke(ctx, p.SessionID); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}
	return nil
}

// List returns every session of the caller, newest first.
func (s *SessionService) List(ctx context.Context, p *Principal) (*SessionList, error) {
	all, err := s.sessions.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}

	out := &SessionList{Sessions: make([]SessionInfo, 0, len(all)), MaxDevices: s.maxDevices}
	for _, sess := range all {
		out.Sessions = append(out.Sessions, SessionInfo{Session: sess, IsCurrent: sess.ID == p.SessionID})
	}
	return out, nil
}

// RevokeForUser revokes one of the caller's other sessions.
func (s *SessionService) RevokeForUser(ctx context.Context, p *Principal, sessionID string) error {
	if sessionID == p.SessionID {
		return common.ErrCannotRevokeSelf
	}

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error finding session: %w", err)
	}
	if sess.UserID != p.UserID {
		return common.ErrForbidden
	}

	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}

	s.logger.Info(ctx, "session revoked", "user_id", p.UserID, "session_id", sessionID)
	return nil
}

// Heartbeat echoes the caller's identity. Reaching it at all proves the
// session is still valid.
func (s *SessionService) Heartbeat(p *Principal) Heartbeat {
	return Heartbeat{UserID: p.UserID, SessionID: p.SessionID, Timestamp: s.now()}
}

// CleanExpired purges sessions whose expires_at has passed.
func (s *SessionService) CleanExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.CleanExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error cleaning sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions removed", "count", n)
	}
	return n, nil
}
