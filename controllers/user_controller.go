package controllers

import (
	"context"
	"net/http"
	"strconv"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// UserStore 员工查询与停用，*db.Repo 实现
type UserStore interface {
	ListUsers(ctx context.Context, q string, page, size int) (db.ListUsersResult, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	SetUserActive(ctx context.Context, userID string, active bool) error
}

var _ UserStore = (*db.Repo)(nil)

type UserController struct {
	repo    UserStore
	appSess SessionRevoker
	cfg     app.Config
	log     *zap.Logger
}

func GetUserController(repo UserStore, appSess SessionRevoker, cfg app.Config, log *zap.Logger) *UserController {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserController{repo: repo, appSess: appSess, cfg: cfg, log: log}
}

// GET /api/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	q := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.repo.ListUsers(c.Request.Context(), q, page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad_request", "message": "invalid uuid"})
		return
	}
	user, err := uc.repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user})
}

// GET /api/me
func (uc *UserController) Me(c *gin.Context) {
	user, err := uc.repo.FindUserByID(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user, "isAdmin": c.GetBool("isAdmin")})
}

// POST /api/users/:id/deactivate
// 员工有借用记录，不做物理删除；停用后撤销其所有会话
func (uc *UserController) DeactivateUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad_request", "message": "invalid uuid"})
		return
	}
	// 不允许停用自己，避免锁死
	if c.GetString("userID") == id {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad_request", "message": "cannot deactivate yourself"})
		return
	}
	target, err := uc.repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if app.IsConfiguredAdmin(uc.cfg, target.Username) {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden", "message": "cannot deactivate a configured admin"})
		return
	}
	if err := uc.repo.SetUserActive(c.Request.Context(), id, false); err != nil {
		writeError(c, err)
		return
	}
	// 已停用的员工在鉴权中间件里也会被拒绝，撤销失败只记日志
	if err := uc.appSess.RevokeAllForUser(c.Request.Context(), id); err != nil {
		uc.log.Warn("revoke sessions failed", zap.String("user_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
