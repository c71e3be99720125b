package models

import "time"

// LoanAuditLog 借用状态变更的审计记录，只追加
type LoanAuditLog struct {
	ID         string    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LoanID     string    `gorm:"type:uuid;index;not null" json:"loanId"`
	LoanItemID *string   `gorm:"type:uuid" json:"loanItemId,omitempty"`
	ActorID    *string   `gorm:"type:uuid" json:"actorId,omitempty"` // 为空表示系统（逾期扫描）
	Action     string    `gorm:"size:40;not null" json:"action"`
	FromStatus string    `gorm:"size:20" json:"fromStatus,omitempty"`
	ToStatus   string    `gorm:"size:20" json:"toStatus,omitempty"`
	Detail     *string   `gorm:"size:255" json:"detail,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (LoanAuditLog) TableName() string { return "lsb_loan_audit_log" }
