package db

import (
	"context"
	"errors"
	"time"

	"asset_lending_tool/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 版本号不匹配：其他事务（如逾期扫描）先一步修改了该借用
var ErrStaleLoan = errors.New("loan was modified concurrently")

var openStatuses = []models.LoanStatus{models.LoanOpen, models.LoanUse}

// Loans

func (r *Repo) CreateLoan(ctx context.Context, l *models.Loan) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(l).Error
}

// LockLoan 锁住借用表头；同一借用的归还/取消/状态变更都先拿这把锁
func (r *Repo) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *Repo) ListLoanItems(ctx context.Context, loanID string) ([]models.LoanItem, error) {
	var items []models.LoanItem
	err := r.DB.WithContext(ctx).
		Preload("Asset").
		Where("loan_id = ?", loanID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// FindLoan 读取完整借用（含明细、资产、单件、借用人）
func (r *Repo) FindLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Items.Asset").
		Preload("Items.AssetUnit").
		Preload("Borrower").
		First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

type LoanQuery struct {
	BorrowerID string
	Status     models.LoanStatus // 按“有效状态”过滤，见 statusFilter
	Now        time.Time
	Page       int
	Size       int
}

type PagedLoans struct {
	Total int64         `json:"total"`
	Items []models.Loan `json:"items"`
}

// 逾期是派生状态：OPEN/USE 且到期时间已过，扫描之前也要算作 OVERDUE
func statusFilter(db *gorm.DB, st models.LoanStatus, now time.Time) *gorm.DB {
	switch st {
	case "":
		return db
	case models.LoanOverdue:
		return db.Where("status = ? OR (status IN ? AND due_date IS NOT NULL AND due_date < ?)",
			models.LoanOverdue, openStatuses, now)
	case models.LoanOpen, models.LoanUse:
		return db.Where("status = ? AND (due_date IS NULL OR due_date >= ?)", st, now)
	default:
		return db.Where("status = ?", st)
	}
}

func (r *Repo) ListLoans(ctx context.Context, q LoanQuery) (*PagedLoans, error) {
	q.Page, q.Size = normalizePage(q.Page, q.Size, 200)
	if q.Now.IsZero() {
		q.Now = time.Now()
	}

	base := func() *gorm.DB {
		db := r.DB.WithContext(ctx).Model(&models.Loan{})
		if q.BorrowerID != "" {
			db = db.Where("borrower_id = ?", q.BorrowerID)
		}
		return statusFilter(db, q.Status, q.Now)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}

	var ls []models.Loan
	if err := base().
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Items.Asset").
		Order("start_date DESC, id DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&ls).Error; err != nil {
		return nil, err
	}
	return &PagedLoans{Total: total, Items: ls}, nil
}

// UpdateLoanStatus 带版本号的条件更新；成功后 l 同步为新状态与版本
func (r *Repo) UpdateLoanStatus(ctx context.Context, l *models.Loan, to models.LoanStatus, fields map[string]any) error {
	upd := map[string]any{
		"status":  to,
		"version": gorm.Expr("version + 1"),
	}
	for k, v := range fields {
		upd[k] = v
	}
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND version = ?", l.ID, l.Version).
		Updates(upd)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleLoan
	}
	l.Status = to
	l.Version++
	return nil
}

// UpdateLoanDueDate 同步更新未归还明细的到期时间
func (r *Repo) UpdateLoanDueDate(ctx context.Context, l *models.Loan, due time.Time, fields map[string]any) error {
	upd := map[string]any{
		"due_date": due,
		"version":  gorm.Expr("version + 1"),
	}
	for k, v := range fields {
		upd[k] = v
	}
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND version = ?", l.ID, l.Version).
		Updates(upd)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleLoan
	}
	l.DueDate = &due
	l.Version++
	return r.DB.WithContext(ctx).Model(&models.LoanItem{}).
		Where("loan_id = ? AND returned_at IS NULL", l.ID).
		Update("due_at", due).Error
}

// Overdue sweep

// ListOverdueCandidates OPEN/USE 且已过期、尚未落库为 OVERDUE 的借用
func (r *Repo) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?", openStatuses, now).
		Order("due_date ASC").
		Limit(limit).
		Find(&ls).Error
	return ls, err
}

// MarkOverdue 乐观更新：版本号不变且仍满足逾期条件才改；返回是否改成功
func (r *Repo) MarkOverdue(ctx context.Context, id string, version int64, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND version = ? AND status IN ? AND due_date IS NOT NULL AND due_date < ?",
			id, version, openStatuses, now).
		Updates(map[string]any{
			"status":      models.LoanOverdue,
			"was_overdue": true,
			"version":     gorm.Expr("version + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

// ListUnnotifiedOverdue 已逾期但还没发过通知的借用（含明细资产名）
func (r *Repo) ListUnnotifiedOverdue(ctx context.Context, limit int) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).
		Preload("Items", "returned_at IS NULL").
		Preload("Items.Asset").
		Where("status = ? AND overdue_notified_at IS NULL", models.LoanOverdue).
		Order("due_date ASC").
		Limit(limit).
		Find(&ls).Error
	return ls, err
}

// ClaimOverdueNotice 抢占发送权，保证一次逾期只通知一次
func (r *Repo) ClaimOverdueNotice(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND status = ? AND overdue_notified_at IS NULL", id, models.LoanOverdue).
		Update("overdue_notified_at", at)
	return res.RowsAffected > 0, res.Error
}

// ReleaseOverdueNotice 通知发送失败时撤回，下一轮重试
func (r *Repo) ReleaseOverdueNotice(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ?", id).
		Update("overdue_notified_at", nil).Error
}
