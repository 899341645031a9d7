package middleware

import (
	"context"
	"net/http"
	"strings"

	"requisition-backend/internal/auth"
	"requisition-backend/internal/logger"
	"requisition-backend/pkg/apperror"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	ctxUserID   = "userID"
	ctxUserRole = "userRole"
)

// PermissionSource resolves the permission codes granted to a role name.
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

// Auth authenticates requests with access tokens and enforces permission codes.
type Auth struct {
	tokens        *auth.TokenManager
	perms         PermissionSource
	secureCookies bool
}

func NewAuth(tokens *auth.TokenManager, perms PermissionSource, secureCookies bool) *Auth {
	return &Auth{tokens: tokens, perms: perms, secureCookies: secureCookies}
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Auth) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	a.setSameSite(c)
	c.SetCookie(AccessTokenCookie, accessToken, int(a.tokens.AccessTTL().Seconds()), "/", "", a.secureCookies, true)
	c.SetCookie(RefreshTokenCookie, refreshToken, int(a.tokens.RefreshTTL().Seconds()), "/", "", a.secureCookies, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Auth) ClearTokenCookies(c *gin.Context) {
	a.setSameSite(c)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", a.secureCookies, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", a.secureCookies, true)
}

// Cross-origin frontends need SameSite=None, which browsers only accept on secure cookies.
func (a *Auth) setSameSite(c *gin.Context) {
	if a.secureCookies {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

// RequireAuth only checks that the caller carries a valid access token.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequirePermission lets the request through when the caller's role holds every listed code.
func (a *Auth) RequirePermission(required ...string) gin.HandlerFunc {
	return a.require(func(granted map[string]bool) (string, bool) {
		for _, p := range required {
			if !granted[p] {
				return p, false
			}
		}
		return "", true
	})
}

// RequireAnyPermission lets the request through when the caller's role holds at least one listed code.
func (a *Auth) RequireAnyPermission(codes ...string) gin.HandlerFunc {
	return a.require(func(granted map[string]bool) (string, bool) {
		for _, p := range codes {
			if granted[p] {
				return "", true
			}
		}
		return strings.Join(codes, "|"), false
	})
}

func (a *Auth) require(check func(granted map[string]bool) (missing string, ok bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}

		codes, err := a.perms.GetPermissionsByRoleName(c.Request.Context(), claims.Role)
		if err != nil {
			logger.Error("[auth] permission lookup failed", zap.String("role", claims.Role), zap.Error(err))
			abort(c, apperror.Internal("failed to verify permissions", err))
			return
		}
		granted := make(map[string]bool, len(codes))
		for _, p := range codes {
			granted[p] = true
		}

		if missing, ok := check(granted); !ok {
			abort(c, apperror.Forbidden("access denied: missing permission '"+missing+"'", map[string]any{"permission": missing}))
			return
		}
		c.Next()
	}
}

// CanRole reports whether a role holds the permission. The websocket endpoint uses it.
func (a *Auth) CanRole(permission string) func(ctx context.Context, role string) (bool, error) {
	return func(ctx context.Context, role string) (bool, error) {
		codes, err := a.perms.GetPermissionsByRoleName(ctx, role)
		if err != nil {
			return false, err
		}
		for _, p := range codes {
			if p == permission {
				return true, nil
			}
		}
		return false, nil
	}
}

func (a *Auth) authenticate(c *gin.Context) (auth.Claims, bool) {
	tokenString, err := tokenFromRequest(c)
	if err != nil {
		abort(c, err)
		return auth.Claims{}, false
	}
	claims, err := a.tokens.Parse(tokenString)
	if err != nil {
		abort(c, apperror.Unauthorized("invalid or expired token"))
		return auth.Claims{}, false
	}
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxUserRole, claims.Role)
	return claims, true
}

// Cookie first, then the Authorization header.
func tokenFromRequest(c *gin.Context) (string, error) {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		return token, nil
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", apperror.Unauthorized("authorization is missing")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperror.Unauthorized("invalid authorization format, expected 'Bearer <token>'")
	}
	return parts[1], nil
}

func abort(c *gin.Context, err error) {
	resp := response.FromError(err)
	c.AbortWithStatusJSON(resp.StatusCode, resp)
}

// UserID returns the authenticated caller. It is uuid.Nil on routes without auth.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// UserRole returns the role name carried by the caller's token.
func UserRole(c *gin.Context) string {
	return c.GetString(ctxUserRole)
}
