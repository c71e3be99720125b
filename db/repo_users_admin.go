// db/repo_users_admin.go
package db

import (
	"asset_lending_tool/models"
	"context"
	"strings"
)

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *Repo) SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error {
	return r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_admin", isAdmin).Error
}

// SetUserActive 停用后该员工不能再被登记为借用人；已有借用不受影响
func (r *Repo) SetUserActive(ctx context.Context, userID string, active bool) error {
	res := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("is_admin = TRUE").
		Count(&n).Error
	return n, err
}

// PromoteAdmins 把配置中的邮箱对应账号设为管理员，返回受影响行数
func (r *Repo) PromoteAdmins(ctx context.Context, emails []string) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	lower := make([]string, 0, len(emails))
	for _, e := range emails {
		lower = append(lower, strings.ToLower(e))
	}
	res := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("LOWER(username) IN ? AND is_admin = FALSE", lower).
		Update("is_admin", true)
	return res.RowsAffected, res.Error
}
