package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/utils"
)

const JobTokenHeader = "x-job-token"

// JobTokenMiddleware guards internal endpoints with a shared token, sent in the header or, for
// Pub/Sub push subscriptions that cannot set headers, as ?token=. An empty configured token
// rejects every request.
func JobTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(JobTokenHeader)
		if got == "" {
			got = c.Query("token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		ctx := utils.SystemContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
