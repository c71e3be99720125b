package db

import (
	"asset_lending_tool/models"
	"context"
	"fmt"
)

func (r *Repo) AppendLoanAudit(ctx context.Context, entry *models.LoanAuditLog) error {
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert loan audit: %w", err)
	}
	return nil
}

func (r *Repo) ListLoanAudit(ctx context.Context, loanID string) ([]models.LoanAuditLog, error) {
	var logs []models.LoanAuditLog
	err := r.DB.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	return logs, err
}
