package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

// RateLimiter is the subset of ratelimit.Limiter the handlers need.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, email string) (ratelimit.Decision, error)
	CheckIPRateLimit(ctx context.Context, ip string) (ratelimit.Decision, error)
	CheckAdminRateLimit(ctx context.Context, ip string) (ratelimit.Decision, error)
	RecordFailure(ctx context.Context, email string) error
	RecordIPAttempt(ctx context.Context, ip string) error
	RecordAdminFailure(ctx context.Context, ip string) error
	RecordSuccess(ctx context.Context, email string) error
	RecordAdminSuccess(ctx context.Context, ip string) error
}

// Handler serves the auth, session and admin endpoints.
type Handler struct {
	auth          *services.AuthService
	sessions      *services.SessionService
	limiter       RateLimiter
	adminPassword string
	logger        logging.Logger
}

func NewHandler(a *services.AuthService, s *services.SessionService, l RateLimiter, adminPassword string, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		auth:          a,
		sessions:      s,
		limiter:       l,
		adminPassword: adminPassword,
		logger:        logger.With("module", "http"),
	}
}

// writeError renders err through errorStatus. 500s are logged with the
// underlying error, which never reaches the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	fail(c, status, code, msg)
}

func badRequest(c *gin.Context) {
	fail(c, http.StatusBadRequest, CodeValidation, "invalid request body")
}

// checkIP rejects the request when the per-IP attempt budget is spent and
// otherwise counts this attempt. It reports whether the handler may go on.
func (h *Handler) checkIP(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	d, err := h.limiter.CheckIPRateLimit(ctx, ip)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if !d.Allowed {
		failRateLimited(c, d.Reason, d.WaitSeconds)
		return false
	}
	if err := h.limiter.RecordIPAttempt(ctx, ip); err != nil {
		h.writeError(c, err)
		return false
	}
	return true
}

type deviceRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

func (d deviceRequest) toDevice(c *gin.Context) models.Device {
	return models.Device{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType,
		Browser:    d.Browser,
		OS:         d.OS,
		IPAddress:  c.ClientIP(),
		Location:   c.GetHeader("CF-IPCountry"),
		UserAgent:  c.Request.UserAgent(),
	}
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type saltRequest struct {
	Email string `json:"email"`
}

// Salt always answers with a salt, real or decoy.
func (h *Handler) Salt(c *gin.Context) {
	var req saltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	salt, err := h.auth.GetSalt(c.Request.Context(), req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	success(c, gin.H{"salt": salt})
}

type registerRequest struct {
	Email             string `json:"email"`
	AuthHash          string `json:"auth_hash"`
	Salt              string `json:"salt"`
	InviteCode        string `json:"invite_code"`
	EncryptedNickname string `json:"encrypted_nickname"`
	NicknameIV        string `json:"nickname_iv"`
	deviceRequest
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if !h.checkIP(c) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.auth.Register(ctx, services.RegisterInput{
		Email:             req.Email,
		AuthHash:          req.AuthHash,
		Salt:              req.Salt,
		InviteCode:        req.InviteCode,
		EncryptedNickname: req.EncryptedNickname,
		NicknameIV:        req.NicknameIV,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	issued, err := h.sessions.Open(ctx, user, req.toDevice(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	success(c, gin.H{
		"user":          userView{ID: user.ID, Email: user.Email},
		"salt":          user.Salt,
		"token":         issued.AccessToken,
		"refresh_token": issued.RefreshToken,
		"expires_in":    issued.ExpiresIn,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	AuthHash string `json:"auth_hash"`
	deviceRequest
}

// Login runs IP check, email check, credential check and then opens a
// session. Unknown email and wrong hash produce the same response.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if !h.checkIP(c) {
		return
	}

	ctx := c.Request.Context()
	email := services.NormalizeEmail(req.Email)

	d, err := h.limiter.CheckRateLimit(ctx, email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !d.Allowed {
		failRateLimited(c, d.Reason, d.WaitSeconds)
		return
	}

	user, err := h.auth.Login(ctx, email, req.AuthHash)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			if rerr := h.limiter.RecordFailure(ctx, email); rerr != nil {
				h.writeError(c, rerr)
				return
			}
		}
		h.writeError(c, err)
		return
	}

	if err := h.limiter.RecordSuccess(ctx, email); err != nil {
		h.writeError(c, err)
		return
	}

	issued, err := h.sessions.Open(ctx, user, req.toDevice(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	success(c, gin.H{
		"user":          userView{ID: user.ID, Email: user.Email},
		"token":         issued.AccessToken,
		"refresh_token": issued.RefreshToken,
		"expires_in":    issued.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	token, expiresIn, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	success(c, gin.H{"token": token, "expires_in": expiresIn})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), principal(c)); err != nil {
		h.writeError(c, err)
		return
	}
	success(c, gin.H{"message": "logged out"})
}

func (h *Handler) Heartbeat(c *gin.Context) {
	hb := h.sessions.Heartbeat(principal(c))
	success(c, gin.H{
		"user_id":    hb.UserID,
		"session_id": hb.SessionID,
		"timestamp":  hb.Timestamp.UnixMilli(),
	})
}

type sessionView struct {
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

func (h *Handler) ListSessions(c *gin.Context) {
	list, err := h.sessions.List(c.Request.Context(), principal(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]sessionView, 0, len(list.Sessions))
	for _, s := range list.Sessions {
		out = append(out, sessionView{
			ID:         s.ID,
			DeviceID:   s.DeviceID,
			DeviceName: s.DeviceName,
			DeviceType: s.DeviceType,
			Browser:    s.Browser,
			OS:         s.OS,
			IPAddress:  s.IPAddress,
			Location:   s.Location,
			IsActive:   s.IsActive,
			IsCurrent:  s.IsCurrent,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}

	success(c, gin.H{"sessions": out, "max_devices": list.MaxDevices})
}

func (h *Handler) RevokeSession(c *gin.Context) {
	if err := h.sessions.RevokeForUser(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	success(c, gin.H{"message": "session revoked"})
}

func (h *Handler) Cleanup(c *gin.Context) {
	n, err := h.sessions.CleanExpired(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, gin.H{"deleted": n})
}
