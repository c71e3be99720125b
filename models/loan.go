// models/loan.go
package models

import "time"

const LoanTable = "lsb_loans"
const LoanItemTable = "lsb_loan_items"

type LoanStatus string

const (
	LoanOpen      LoanStatus = "OPEN"
	LoanUse       LoanStatus = "USE"
	LoanClosed    LoanStatus = "CLOSED"
	LoanOverdue   LoanStatus = "OVERDUE"
	LoanCancelled LoanStatus = "CANCELLED"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanOpen, LoanUse, LoanClosed, LoanOverdue, LoanCancelled:
		return true
	}
	return false
}

// Terminal 终态不可再变更
func (s LoanStatus) Terminal() bool { return s == LoanClosed || s == LoanCancelled }

// Loan 一次借用（表头），不做物理删除
type Loan struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowerID string     `gorm:"type:uuid;index;not null" json:"borrowerId"`
	CreatedBy  string     `gorm:"type:uuid;not null" json:"createdBy"`
	Status     LoanStatus `gorm:"size:20;not null;default:'OPEN';index:idx_loans_status_due,priority:1" json:"status"`
	StartDate  time.Time  `gorm:"not null" json:"startDate"`
	DueDate    *time.Time `gorm:"index:idx_loans_status_due,priority:2" json:"dueDate,omitempty"`
	Note       string     `gorm:"size:255" json:"note,omitempty"`

	// 曾经逾期过（关闭后仍保留，用于审计）
	WasOverdue        bool       `gorm:"not null;default:false" json:"wasOverdue"`
	OverdueNotifiedAt *time.Time `json:"overdueNotifiedAt,omitempty"`

	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	// 乐观锁版本号，每次状态变更 +1
	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items    []LoanItem `gorm:"foreignKey:LoanID" json:"items,omitempty"`
	Borrower *User      `gorm:"foreignKey:BorrowerID" json:"borrower,omitempty"`
}

type ItemKind string

const (
	ItemKindUnit ItemKind = "UNIT"
	ItemKindBulk ItemKind = "BULK"
)

// LoanItem 借用明细。AssetUnitID 非空 = 单件（数量恒为 1），为空 = 按数量。
// ReturnedAt 为空表示仍未归还。
type LoanItem struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID      string     `gorm:"type:uuid;index;not null" json:"loanId"`
	AssetID     string     `gorm:"type:uuid;index;not null" json:"assetId"`
	AssetUnitID *string    `gorm:"type:uuid" json:"assetUnitId,omitempty"`
	Quantity    int        `gorm:"not null;check:chk_loan_items_quantity,quantity > 0" json:"quantity"`
	StartAt     time.Time  `gorm:"not null" json:"startAt"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	ReturnedAt  *time.Time `gorm:"index" json:"returnedAt,omitempty"`
	ReturnedBy  *string    `gorm:"type:uuid" json:"returnedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`

	Asset     *Asset     `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	AssetUnit *AssetUnit `gorm:"foreignKey:AssetUnitID" json:"assetUnit,omitempty"`
}

func (li LoanItem) Kind() ItemKind {
	if li.AssetUnitID != nil {
		return ItemKindUnit
	}
	return ItemKindBulk
}

func (li LoanItem) Outstanding() bool { return li.ReturnedAt == nil }

func (Loan) TableName() string     { return LoanTable }
func (LoanItem) TableName() string { return LoanItemTable }
