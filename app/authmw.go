package app

import (
	"asset_lending_tool/lending"
	"asset_lending_tool/models"
	"asset_lending_tool/session"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

// 会话由外部认证服务写入 Redis，这里只读取/撤销
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// SessionID 优先取 Cookie，其次 Authorization: Bearer <id>
func SessionID(c *gin.Context) string {
	if ck, err := c.Request.Cookie(AppSessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.GetHeader("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// IsConfiguredAdmin 用户名是否在 ADMIN_EMAILS 中（不区分大小写）
func IsConfiguredAdmin(cfg Config, username string) bool {
	for _, admin := range cfg.AdminEmails {
		if strings.EqualFold(admin, username) {
			return true
		}
	}
	return false
}

func AuthRequired(appSess SessionReader, users UserFinder, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := SessionID(c)
		if sid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), sid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}

		// 确认员工仍存在且未停用，并把 isAdmin 放进 Context（只查一次）
		u, err := users.FindUserByID(c.Request.Context(), as.UserID)
		if err != nil || !u.Active {
			_ = appSess.Delete(c.Request.Context(), sid)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		c.Set("userID", u.ID)
		c.Set("username", u.Username)
		c.Set("isAdmin", u.IsAdmin || IsConfiguredAdmin(cfg, u.Username))

		c.Next()
	}
}

// AdminOnly 必须挂在 AuthRequired 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("userID") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ActorFrom 取出当前操作人；未登录时 UserID 为空
func ActorFrom(c *gin.Context) lending.Actor {
	return lending.Actor{
		UserID:  c.GetString("userID"),
		IsAdmin: c.GetBool("isAdmin"),
	}
}
