package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
)

// Context keys set by the auth middlewares.
const (
	AdminIDKey = "adminID"
	UserKey    = "user"
)

// WalletHeader identifies the calling wallet on user endpoints.
const WalletHeader = "x-wallet-address"

// TokenParser validates an admin bearer token.
type TokenParser interface {
	ParseToken(token string) (int64, error)
}

// WalletResolver maps a wallet address to its user, registering it on first use.
type WalletResolver interface {
	Resolve(ctx context.Context, wallet string) (*models.User, error)
}

// AdminAuth requires a valid `Authorization: Bearer <jwt>` header.
func AdminAuth(parser TokenParser, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Abort(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		adminID, err := parser.ParseToken(parts[1])
		if err != nil {
			log.Debug("rejected admin token", zap.String("path", c.FullPath()), zap.Error(err))
			response.Abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(AdminIDKey, adminID)
		c.Next()
	}
}

// WalletAuth resolves the x-wallet-address header into a user.
func WalletAuth(resolver WalletResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.Resolve(c.Request.Context(), c.GetHeader(WalletHeader))
		switch {
		case errors.Is(err, models.ErrMissingWallet):
			response.Abort(c, http.StatusUnauthorized, "Wallet address required")
			return
		case errors.Is(err, models.ErrInvalidWallet):
			response.Abort(c, http.StatusUnauthorized, "Invalid wallet address")
			return
		case err != nil:
			log.Error("failed to resolve wallet", zap.Error(err))
			response.Abort(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by WalletAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// AdminID returns the admin id set by AdminAuth.
func AdminID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(AdminIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
