package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/ninjafinder/internal/auth"
	"github.com/geocoder89/ninjafinder/internal/config"
	"github.com/geocoder89/ninjafinder/internal/domain/job"
	"github.com/geocoder89/ninjafinder/internal/domain/user"
	"github.com/geocoder89/ninjafinder/internal/http/middlewares"
	"github.com/geocoder89/ninjafinder/internal/jobs"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/geocoder89/ninjafinder/internal/security"
	"github.com/gin-gonic/gin"
)

const invalidCredentials = "Invalid credentials"

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, p user.CreateParams) (user.User, error)
}

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        *auth.Manager
	revoker    TokenRevoker
	jobs       JobEnqueuer
	prom       *observability.Prom
	log        *slog.Logger
}

// NewAuthHandler wires the auth endpoints. revoker, enqueuer and prom may be nil.
func NewAuthHandler(
	users UserReader,
	userWriter UserWriter,
	jwtManager *auth.Manager,
	revoker TokenRevoker,
	enqueuer JobEnqueuer,
	prom *observability.Prom,
	log *slog.Logger,
) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwtManager,
		revoker:    revoker,
		jobs:       enqueuer,
		prom:       prom,
		log:        log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=40"`
}

type SignUpRequest struct {
	Name     string `json:"name" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=40"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		h.prom.ObserveAuth("signup", "invalid")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	email := user.NormalizeEmail(req.Email)

	_, err := h.users.GetByEmail(cctx, email)

	switch {
	case err == nil:
		h.prom.ObserveAuth("signup", "conflict")
		RespondConflict(ctx, "email_taken", "User already exists")
		return
	case !errors.Is(err, user.ErrNotFound):
		h.log.ErrorContext(cctx, "signup_lookup_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.log.ErrorContext(cctx, "password_hash_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.userWriter.Create(cctx, user.CreateParams{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         user.DefaultRole,
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.prom.ObserveAuth("signup", "conflict")
			RespondConflict(ctx, "email_taken", "User already exists")
			return
		}

		h.log.ErrorContext(cctx, "user_create_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	token, err := h.jwt.GenerateToken(u.ID, u.Email, u.Role)

	if err != nil {
		h.log.ErrorContext(cctx, "token_sign_failed", "err", err)
		RespondInternal(ctx, "Could not generate token")
		return
	}

	h.enqueueWelcome(cctx, u, requestIDFrom(ctx))
	h.prom.ObserveAuth("signup", "success")

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "SignUp success",
		"token":   token,
		"user":    u.Public(),
	})
}

// enqueueWelcome is best effort: a failed enqueue never fails the signup.
func (h *AuthHandler) enqueueWelcome(ctx context.Context, u user.User, requestID string) {
	if h.jobs == nil {
		return
	}

	req, err := jobs.NewUserWelcome(jobs.UserWelcomePayload{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RequestedAt: time.Now().UTC(),
		RequestID:   requestID,
	})

	if err == nil {
		_, err = h.jobs.Create(ctx, req)
	}

	if err != nil {
		h.log.WarnContext(ctx, "welcome_enqueue_failed", "user_id", u.ID, "err", err)
	}
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		h.prom.ObserveAuth("login", "invalid")
		return
	}

	// short timeout for DB lookup
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(cctx, "login_lookup_failed", "err", err)
			RespondInternal(ctx, "Could not log in")
			return
		}

		// same bcrypt cost as a real mismatch
		security.BurnCompare(req.Password)
		h.prom.ObserveAuth("login", "failure")
		RespondUnauthorized(ctx, "invalid_credentials", invalidCredentials)
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		if !security.IsMismatch(err) {
			h.log.WarnContext(cctx, "password_check_failed", "user_id", foundUser.ID, "err", err)
		}

		h.prom.ObserveAuth("login", "failure")
		RespondUnauthorized(ctx, "invalid_credentials", invalidCredentials)
		return
	}

	token, err := h.jwt.GenerateToken(foundUser.ID, foundUser.Email, foundUser.Role)

	if err != nil {
		h.log.ErrorContext(cctx, "token_sign_failed", "err", err)
		RespondInternal(ctx, "Could not generate token")
		return
	}

	h.prom.ObserveAuth("login", "success")

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"name":    foundUser.Name,
	})
}

// Logout revokes the presented token until it would have expired.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	claims, ok := middlewares.ClaimsFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Invalid token")
		return
	}

	if h.revoker != nil {
		cctx, cancel := config.WithTimeout(2 * time.Second)
		defer cancel()

		until := time.Now().Add(h.jwt.TTL())
		if claims.ExpiresAt != nil {
			until = claims.ExpiresAt.Time
		}

		err := h.revoker.Revoke(cctx, claims.ID, until)

		if err != nil {
			h.log.ErrorContext(ctx.Request.Context(), "token_revoke_failed", "err", err)
			RespondInternal(ctx, "Could not log out")
			return
		}
	}

	h.prom.ObserveAuth("logout", "success")

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out",
	})
}

// GetUserByEmail returns the public projection of a user.
func (h *AuthHandler) GetUserByEmail(ctx *gin.Context) {
	email := ctx.Param("email")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		h.log.ErrorContext(cctx, "user_lookup_failed", "err", err)
		RespondInternal(ctx, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    u.Public(),
	})
}
