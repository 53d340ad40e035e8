package security

import (
	"net/http"
	"strings"

	sec "MsgRelay/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
const CtxUserKey = "userId"

type Options struct {
	HeaderToken               string // 默认 "auth-token"（与既有前端一致）
	EnableAuthorizationBearer bool   // 兼容 Authorization: Bearer xxx
	JWT                       sec.Options
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		HeaderToken:               "auth-token",
		EnableAuthorizationBearer: true,
		JWT:                       sec.DefaultOptions(secret),
	}
}

// Middleware resolves the request token into a user id in context.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please authenticate using a valid token"})
			return
		}

		userID, err := sec.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please authenticate using a valid token"})
			return
		}

		c.Set(CtxUserKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id, empty if the middleware did not run.
func UserID(c *gin.Context) string {
	v, _ := c.Get(CtxUserKey)
	s, _ := v.(string)
	return s
}
