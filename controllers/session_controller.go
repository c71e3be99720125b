package controllers

import (
	"context"
	"net/http"
	"strings"

	"asset_lending_tool/app"
	"asset_lending_tool/models"
	"asset_lending_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SessionStore interface {
	Issue(ctx context.Context, id, userID string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

type UserByName interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type SessionController struct {
	sess   SessionStore
	users  UserByName
	secure bool
}

func NewSessionController(sess SessionStore, users UserByName, cfg app.Config) *SessionController {
	secure := false
	for _, o := range cfg.WebOrigins {
		if strings.HasPrefix(o, "https://") {
			secure = true
		}
	}
	return &SessionController{sess: sess, users: users, secure: secure}
}

func (sc *SessionController) setCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sc.secure,
	})
}

// POST /api/logout  Cookie 或 Bearer 会话都可注销
func (sc *SessionController) Logout(c *gin.Context) {
	if sid := app.SessionID(c); sid != "" {
		_ = sc.sess.Delete(c.Request.Context(), sid)
	}
	sc.setCookie(c, "", -1)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

type devLoginReq struct {
	Username string `json:"username" binding:"required,email"`
}

// POST /dev/login 本地联调用，生产不注册
func (sc *SessionController) DevLogin(c *gin.Context) {
	var in devLoginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	u, err := sc.users.FindUserByUsername(c.Request.Context(), in.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	if !u.Active {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden", "message": "user is deactivated"})
		return
	}
	sid := uuid.NewString()
	as, err := sc.sess.Issue(c.Request.Context(), sid, u.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	sc.setCookie(c, sid, int(as.ExpiresAt-as.IssuedAt))
	c.JSON(http.StatusOK, app.H{"sessionId": sid, "userId": u.ID, "expiresAt": as.ExpiresAt})
}
