// app/bootstrap.go
package app

import (
	"context"

	"asset_lending_tool/db"

	"go.uber.org/zap"
)

// BootstrapAdmins 启动时把 ADMIN_EMAILS 中已存在的账号提升为管理员
func BootstrapAdmins(ctx context.Context, cfg Config, repo *db.Repo, log *zap.Logger) {
	if len(cfg.AdminEmails) == 0 {
		n, err := repo.CountAdmins(ctx)
		if err == nil && n == 0 {
			log.Warn("no admin configured; set ADMIN_EMAILS to manage loans for other employees")
		}
		return
	}
	n, err := repo.PromoteAdmins(ctx, cfg.AdminEmails)
	if err != nil {
		log.Error("bootstrap admins failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("promoted configured admins", zap.Int64("count", n))
	}
}
