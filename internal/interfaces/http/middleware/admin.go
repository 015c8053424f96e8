package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// AdminToken guards operator routes with a static bearer token. An empty
// token closes the routes entirely.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"A valid admin token is required",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}
