package models

import (
	"time"
)

// User 员工（借用人/操作人）。账号的注册与登录由外部认证服务负责，
// 这里只读取；Username 即登录邮箱。
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;size:255;not null" json:"username"`
	DisplayName string `gorm:"size:255;not null" json:"displayName"`

	IsAdmin bool `gorm:"not null;default:false" json:"isAdmin"`
	// 离职/停用后不能再作为借用人
	Active bool `gorm:"not null;default:true" json:"active"`

	LastSeenAt *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "lsb_users"
}
