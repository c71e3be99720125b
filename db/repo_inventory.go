// db/repo_inventory.go
package db

import (
	"asset_lending_tool/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnitUnavailable   = errors.New("unit unavailable")
	ErrAlreadyReleased   = errors.New("reservation already released")
	// 单件资产按数量借，或数量资产按单件借
	ErrAllocationMode = errors.New("allocation mode does not match asset")
	ErrDuplicate      = errors.New("duplicate record")
)

// 可借数量：停用资产为 0；单件 = ACTIVE 且无未归还明细的件数；数量 = 总量 - 未归还数量
var availableExpr = fmt.Sprintf(`
	CASE
	  WHEN a.status <> 'ACTIVE' THEN 0
	  WHEN a.is_serialized THEN (
	    SELECT COUNT(*) FROM %[1]s u
	    WHERE u.asset_id = a.id AND u.status = 'ACTIVE'
	      AND NOT EXISTS (
	        SELECT 1 FROM %[2]s li
	        WHERE li.asset_unit_id = u.id AND li.returned_at IS NULL))
	  ELSE GREATEST(a.total_qty - COALESCE((
	    SELECT SUM(li.quantity) FROM %[2]s li
	    WHERE li.asset_id = a.id AND li.returned_at IS NULL), 0), 0)
	END`, models.AssetUnitTable, models.LoanItemTable)

var capacityExpr = fmt.Sprintf(`
	CASE
	  WHEN a.is_serialized THEN (
	    SELECT COUNT(*) FROM %s u WHERE u.asset_id = a.id AND u.status = 'ACTIVE')
	  ELSE a.total_qty
	END`, models.AssetUnitTable)

// Assets

func (r *Repo) CreateAsset(ctx context.Context, a *models.Asset) error {
	if err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *Repo) FindAssetByID(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *Repo) AddAssetUnit(ctx context.Context, u *models.AssetUnit) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SetUnitStatus 标记单件丢失/损坏等；借出中的单件也可以标记，归还不受影响
func (r *Repo) SetUnitStatus(ctx context.Context, unitID string, st models.AssetStatus) (*models.AssetUnit, error) {
	var u models.AssetUnit
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&u, "id = ?", unitID).Error; err != nil {
			return notFound(err)
		}
		u.Status = st
		return tx.Model(&u).Update("status", st).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Reservations
// 以下方法必须在 WithTx 事务内调用：行锁持有到提交为止

// ReserveBulk 锁住资产行后校验可借数量。
// 校验通过后调用方需在同一事务内插入明细，否则锁释放后额度不再受保护。
func (r *Repo) ReserveBulk(ctx context.Context, assetID string, qty int) (*models.Asset, error) {
	var a models.Asset
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "id = ?", assetID).Error; err != nil {
		return nil, notFound(err)
	}
	if a.IsSerialized {
		return &a, ErrAllocationMode
	}
	if a.Status != models.AssetActive {
		return &a, ErrInsufficientStock
	}
	out, err := r.outstandingQty(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if int64(a.TotalQty)-out < int64(qty) {
		return &a, ErrInsufficientStock
	}
	return &a, nil
}

// ReserveUnit 锁住单件行，确认 ACTIVE 且无未归还明细
func (r *Repo) ReserveUnit(ctx context.Context, unitID string) (*models.AssetUnit, error) {
	var u models.AssetUnit
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&u, "id = ?", unitID).Error; err != nil {
		return nil, notFound(err)
	}
	if u.Status != models.AssetActive {
		return &u, ErrUnitUnavailable
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.LoanItem{}).
		Where("asset_unit_id = ? AND returned_at IS NULL", u.ID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return &u, ErrUnitUnavailable
	}
	return &u, nil
}

// InsertLoanItem 落地预留；部分唯一索引兜底同一单件的并发借出
func (r *Repo) InsertLoanItem(ctx context.Context, it *models.LoanItem) error {
	if err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(it).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUnitUnavailable
		}
		return err
	}
	return nil
}

// Release 归还一条明细。条件更新保证同一明细只释放一次。
func (r *Repo) Release(ctx context.Context, loanItemID string, at time.Time, by string) error {
	res := r.DB.WithContext(ctx).Model(&models.LoanItem{}).
		Where("id = ? AND returned_at IS NULL", loanItemID).
		Updates(map[string]any{
			"returned_at": at,
			"returned_by": by,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReleased
	}
	return nil
}

func (r *Repo) outstandingQty(ctx context.Context, assetID string) (int64, error) {
	var out int64
	err := r.DB.WithContext(ctx).Model(&models.LoanItem{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("asset_id = ? AND returned_at IS NULL", assetID).
		Scan(&out).Error
	return out, err
}

// Availability

type AvailabilityRow struct {
	ID           string             `json:"id"`
	SKU          string             `gorm:"column:sku" json:"sku"`
	Name         string             `json:"name"`
	CategoryID   *string            `json:"categoryId,omitempty"`
	IsSerialized bool               `json:"isSerialized"`
	Status       models.AssetStatus `json:"status"`
	Capacity     int64              `json:"capacity"`
	Available    int64              `json:"available"`
}

type AvailabilityQuery struct {
	Q             string // 模糊搜索：sku/name
	CategoryID    string
	OnlyAvailable bool
	Page          int
	Size          int
}

type PagedAvailability struct {
	Total int64             `json:"total"`
	Items []AvailabilityRow `json:"items"`
}

// AvailableCount 单条语句计算，读到的是一致快照
func (r *Repo) AvailableCount(ctx context.Context, assetID string) (int64, error) {
	var row AvailabilityRow
	if err := r.DB.WithContext(ctx).
		Table(models.AssetTable+" a").
		Select("a.id, "+availableExpr+" AS available").
		Where("a.id = ?", assetID).
		Scan(&row).Error; err != nil {
		return 0, err
	}
	if row.ID == "" {
		return 0, ErrNotFound
	}
	return row.Available, nil
}

func (r *Repo) ListAvailability(ctx context.Context, q AvailabilityQuery) (*PagedAvailability, error) {
	q.Page, q.Size = normalizePage(q.Page, q.Size, 200)

	base := func() *gorm.DB {
		db := r.DB.WithContext(ctx)
		inner := db.
			Table(models.AssetTable+" a").
			Select(`a.id, a.sku, a.name, a.category_id, a.is_serialized, a.status, ` +
				capacityExpr + ` AS capacity, ` + availableExpr + ` AS available`)
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			inner = inner.Where("LOWER(a.sku) LIKE ? OR LOWER(a.name) LIKE ?", pat, pat)
		}
		if q.CategoryID != "" {
			inner = inner.Where("a.category_id = ?", q.CategoryID)
		}
		outer := db.Table("(?) AS av", inner)
		if q.OnlyAvailable {
			outer = outer.Where("av.available > 0")
		}
		return outer
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []AvailabilityRow
	if err := base().
		Order("av.name ASC, av.id ASC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return &PagedAvailability{Total: total, Items: rows}, nil
}
