package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/auth"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/users"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation error codes returned by AuthService.
const (
	CodeInvalidEmail      = "INVALID_EMAIL"
	CodeInvalidAuthHash   = "INVALID_AUTH_HASH"
	CodeInvalidSalt       = "INVALID_SALT"
	CodeInvalidInviteCode = "INVALID_INVITE_CODE"
)

// Email shape windows. They are intentionally narrower than RFC 5321.
const (
	emailLocalMin  = 2
	emailLocalMax  = 32
	emailDomainMin = 4
	emailDomainMax = 48
)

// Hex length bounds, in characters.
const (
	authHashMinLen = 64
	authHashMaxLen = 128
)

// saltLen is the only accepted salt length. Decoy salts share it, so a stored
// salt never looks different from a generated one.
const saltLen = 2 * common.SaltSize

var (
	emailLocalRe  = regexp.MustCompile(`^[a-z0-9._%+\-]+$`)
	emailDomainRe = regexp.MustCompile(`^([a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

// dummyAuthHash is compared against when the email is unknown so both
// branches of Login do the same work.
var dummyAuthHash = strings.Repeat("0", authHashMinLen)

// RegisterInput is what a client submits to create an account. Nickname
// fields are opaque ciphertext and may be empty.
type RegisterInput struct {
	Email             string
	AuthHash          string
	Salt              string
	InviteCode        string
	EncryptedNickname string
	NicknameIV        string
}

// AuthService registers users and verifies their client-derived auth hash.
// It never sees a master password.
type AuthService struct {
	users       users.Repository
	codec       *auth.TokenCodec
	accessTTL   time.Duration
	inviteCodes []string
	logger      logging.Logger
}

// NewAuthService refuses to build without a real signing secret.
func NewAuthService(m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger, opts ...auth.Option) (*AuthService, error) {
	if config.IsPlaceholderSecret(cfg.SecretKey) {
		return nil, fmt.Errorf("%w: signing secret is missing or a placeholder", common.ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &AuthService{
		users:       m.Users(),
		codec:       auth.NewTokenCodec([]byte(cfg.SecretKey), opts...),
		accessTTL:   cfg.AccessTokenTTL,
		inviteCodes: cfg.InviteCodes,
		logger:      logger.With("module", "auth"),
	}, nil
}

// NormalizeEmail case-folds and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return common.NewValidationError(CodeInvalidEmail, "invalid email address")
	}
	if len(local) < emailLocalMin || len(local) > emailLocalMax || !emailLocalRe.MatchString(local) {
		return common.NewValidationError(CodeInvalidEmail, "invalid email address")
	}
	if len(domain) < emailDomainMin || len(domain) > emailDomainMax || !emailDomainRe.MatchString(domain) {
		return common.NewValidationError(CodeInvalidEmail, "invalid email address")
	}
	return nil
}

func isHex(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// validSalt accepts exactly the shape of decoySalt: saltLen lowercase hex
// characters.
func validSalt(salt string) bool {
	return isHex(salt, saltLen, saltLen) && strings.ToLower(salt) == salt
}

func (s *AuthService) checkInvite(code string) error {
	if len(s.inviteCodes) == 0 {
		return nil
	}
	ok := 0
	for _, c := range s.inviteCodes {
		ok |= subtle.ConstantTimeCompare([]byte(c), []byte(code))
	}
	if ok != 1 {
		return common.NewValidationError(CodeInvalidInviteCode, "invalid invite code")
	}
	return nil
}

// Register validates and stores a new user. A taken email is reported as
// common.ErrRegistrationFailed without saying why.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := s.checkInvite(in.InviteCode); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !isHex(in.AuthHash, authHashMinLen, authHashMaxLen) {
		return nil, common.NewValidationError(CodeInvalidAuthHash, "auth hash must be hex")
	}
	if !validSalt(in.Salt) {
		return nil, common.NewValidationError(CodeInvalidSalt, "salt must be lowercase hex")
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		AuthHash: strings.ToLower(in.AuthHash),
		Salt:     in.Salt,
	}
	if in.EncryptedNickname != "" && in.NicknameIV != "" {
		user.EncryptedNickname = &in.EncryptedNickname
		user.NicknameIV = &in.NicknameIV
	}

	user, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			s.logger.Info(ctx, "registration rejected", "reason", "duplicate")
			return nil, common.ErrRegistrationFailed
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login verifies email and auth hash. Unknown emails, malformed input and
// wrong hashes all yield common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, authHash string) (*models.User, error) {
	email = NormalizeEmail(email)
	candidate := strings.ToLower(authHash)

	if validateEmail(email) != nil || !isHex(candidate, authHashMinLen, authHashMaxLen) {
		return nil, common.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			checkAuthHash(dummyAuthHash, candidate)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	if !checkAuthHash(user.AuthHash, candidate) {
		return nil, common.ErrInvalidCredentials
	}

	return user, nil
}

func checkAuthHash(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// GetSalt returns the stored salt, or a fresh random salt of the same shape
// when the email is unknown or malformed.
func (s *AuthService) GetSalt(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if validateEmail(email) != nil {
		return s.decoySalt()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.decoySalt()
		}
		return "", fmt.Errorf("error fetching user: %w", err)
	}

	return user.Salt, nil
}

func (s *AuthService) decoySalt() (string, error) {
	return common.MakeRandHexString(common.SaltSize)
}

// IssueToken signs an access token for user bound to sessionID.
func (s *AuthService) IssueToken(user *models.User, sessionID string) (string, error) {
	return s.codec.SignFor(auth.Claims{
		UserID:           user.ID,
		Email:            user.Email,
		RegisteredClaims: jwt.RegisteredClaims{ID: sessionID},
	}, s.accessTTL)
}

// VerifyToken checks a bearer token. Any failure is common.ErrInvalidToken.
func (s *AuthService) VerifyToken(token string) (*auth.Claims, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}
