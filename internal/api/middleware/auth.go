package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/madrasah_billing_server/internal/pkg/jwt"
	"github.com/qs3c/madrasah_billing_server/internal/pkg/response"
)

const (
	UserIDKey         = "userID"
	OrganizationIDKey = "organizationID"
)

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		if !setClaims(c, tokenString, jwtSecret) {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}
		c.Next()
	}
}

// QueryAuth 从 ?token= 读取 token，浏览器 WebSocket 无法设置请求头
func QueryAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		if !setClaims(c, tokenString, jwtSecret) {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, tokenString, jwtSecret string) bool {
	claims, err := jwt.ParseToken(tokenString, jwtSecret)
	if err != nil || claims.OrganizationID <= 0 {
		return false
	}
	c.Set(UserIDKey, claims.UserID)
	c.Set(OrganizationIDKey, claims.OrganizationID)
	return true
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	return getInt64(c, UserIDKey)
}

// GetOrganizationID 从上下文获取机构 ID
func GetOrganizationID(c *gin.Context) (int64, bool) {
	return getInt64(c, OrganizationIDKey)
}

func getInt64(c *gin.Context, key string) (int64, bool) {
	v, exists := c.Get(key)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
