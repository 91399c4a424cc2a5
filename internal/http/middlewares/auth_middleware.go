package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/ninjafinder/internal/actorctx"
	"github.com/geocoder89/ninjafinder/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	jwt     TokenVerifier
	revoked RevocationChecker
}

// NewAuthMiddleware builds the bearer gate. revoked may be nil, in which case
// tokens are only checked for signature and expiry.
func NewAuthMiddleware(jwt TokenVerifier, revoked RevocationChecker) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, revoked: revoked}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "No token provided")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortUnauthorized(c, "Malformed token")
			return
		}

		claims, err := m.jwt.VerifyToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		if m.revoked != nil {
			revoked, err := m.revoked.IsRevoked(c.Request.Context(), claims.ID)

			if err != nil {
				// a denylist outage must not let revoked tokens through
				slog.Default().ErrorContext(c.Request.Context(), "denylist_check_failed", "err", err)
				abortUnauthorized(c, "Invalid token")
				return
			}

			if revoked {
				abortUnauthorized(c, "Invalid token")
				return
			}
		}

		// Stash useful bits of identity on the context
		c.Set(CtxClaims, claims)
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, claims.Role)

		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	reqID, _ := c.Get(CtxRequestID)
	id, _ := reqID.(string)

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": id,
		},
	})
}

// Optional helpers so handlers don't need to know the magic keys.

func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
