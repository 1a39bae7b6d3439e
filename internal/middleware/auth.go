package middleware

import (
	"context"
	"net/http"
	"strings"

	"example.com/tweetfeed/internal/auth"
	"example.com/tweetfeed/internal/logger"
	"github.com/gin-gonic/gin"
)

var logg = logger.New()

type contextKey string

const identityCtxKey = contextKey("identity")

// TokenVerifier is satisfied by *auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid "Authorization: Bearer <token>" header
// and attaches the verified identity to the request context otherwise.
func Authenticate(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT Token"})
			return
		}

		id, err := tokens.Verify(token)
		if err != nil {
			logg.Debug("middleware/auth", "Token rejected: "+err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT Token"})
			return
		}

		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityCtxKey, id))
		c.Next()
	}
}

// IdentityFromContext extracts the identity set by Authenticate.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(auth.Identity)
	return id, ok
}

// IdentityFrom is IdentityFromContext for gin handlers.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	return IdentityFromContext(c.Request.Context())
}
