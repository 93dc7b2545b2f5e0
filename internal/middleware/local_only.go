package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jrjohn/arcana-pos-go/internal/dto/response"
	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

// LocalOnly rejects requests that do not come from the loopback interface.
// The agent exposes queue contents and session control, so only processes on the register may call it.
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isLoopback(c.Request.RemoteAddr) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden,
			response.NewError[any](apperrors.CodeForbidden, "agent API is only reachable from this machine"))
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
