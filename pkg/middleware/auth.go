package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rusikfsk/unichat/pkg/jwt"
	"github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	UsernameKey   = "username"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	QueryTokenKey = "access_token"
)

// TokenValidator validates an access token.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates bearer tokens locally.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// ExtractToken returns the bearer token from the Authorization header, or
// the access_token query parameter for browser WebSocket clients.
func ExtractToken(c *gin.Context) string {
	return TokenFromRequest(c.Request)
}

// TokenFromRequest is ExtractToken for plain net/http handlers.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get(AuthHeaderKey); authHeader != "" {
		if strings.HasPrefix(authHeader, BearerPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		}
		return ""
	}
	return r.URL.Query().Get(QueryTokenKey)
}

// RequireAuth returns a Gin middleware that validates JWT tokens.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Request = c.Request.WithContext(
			log.WithFields(c.Request.Context(), log.FieldUserID, claims.UserID),
		)

		c.Next()
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
