package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// VisibilityChecker reports whether userID follows the author of tweetID.
type VisibilityChecker interface {
	CanViewTweet(ctx context.Context, userID, tweetID string) (bool, error)
}

// TweetVisibility lets a request through only when the authenticated caller follows the
// author of the tweet named by the path parameter param. It must run after Authenticate.
// Lookup failures are reported exactly like a missing follow edge.
func TweetVisibility(checker VisibilityChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT Token"})
			return
		}

		allowed, err := checker.CanViewTweet(c.Request.Context(), id.UserID, c.Param(param))
		if err != nil {
			logg.Error("middleware/visibility", "Visibility check failed", err)
		}
		if err != nil || !allowed {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Request"})
			return
		}
		c.Next()
	}
}
