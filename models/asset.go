// models/asset.go
package models

import "time"

const AssetTable = "lsb_assets"
const AssetUnitTable = "lsb_asset_units"

// AssetStatus 生命周期状态，资产与单件共用
type AssetStatus string

const (
	AssetActive   AssetStatus = "ACTIVE"
	AssetInactive AssetStatus = "INACTIVE"
	AssetLost     AssetStatus = "LOST"
	AssetBroken   AssetStatus = "BROKEN"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetActive, AssetInactive, AssetLost, AssetBroken:
		return true
	}
	return false
}

// Asset 可借出的物品种类。
// IsSerialized=true 时按单件（AssetUnit）借出，TotalQty 不参与计算；
// 否则按数量借出，可借数量 = TotalQty - 未归还数量之和。
type Asset struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	SKU          string      `gorm:"column:sku;size:120;uniqueIndex;not null" json:"sku"`
	Name         string      `gorm:"size:200;not null" json:"name"`
	CategoryID   *string     `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	IsSerialized bool        `gorm:"not null;default:false" json:"isSerialized"`
	TotalQty     int         `gorm:"not null;default:0;check:chk_assets_total_qty,total_qty >= 0" json:"totalQty"`
	Status       AssetStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`

	Units []AssetUnit `gorm:"foreignKey:AssetID" json:"units,omitempty"`
}

// AssetUnit 序列化资产的单件，序列号在同一资产下唯一
type AssetUnit struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID      string      `gorm:"type:uuid;not null;uniqueIndex:idx_unit_serial_per_asset" json:"assetId"`
	SerialNumber string      `gorm:"size:120;not null;uniqueIndex:idx_unit_serial_per_asset" json:"serialNumber"`
	Status       AssetStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	Note         *string     `gorm:"size:255" json:"note,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (Asset) TableName() string     { return AssetTable }
func (AssetUnit) TableName() string { return AssetUnitTable }
