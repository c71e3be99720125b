// controllers/srv.go
package controllers

import (
	"context"
	"time"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/lending"
	"asset_lending_tool/models"
	"asset_lending_tool/session"

	"go.uber.org/zap"
)

type Srv struct {
	Repo    *db.Repo
	Lending *lending.Coordinator
	AppSess *session.AppSessionStore
	Cfg     app.Config
	Log     *zap.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:    a.Repo,
		Lending: a.Lending,
		AppSess: a.AppSessions(),
		Cfg:     a.Config,
		Log:     a.Log,
	}
}

// LoanService 借用相关操作，*lending.Coordinator 实现
type LoanService interface {
	CreateLoan(ctx context.Context, actor lending.Actor, in lending.CreateLoanInput) (*models.Loan, error)
	ReturnItem(ctx context.Context, actor lending.Actor, loanID, loanItemID string) (*models.Loan, error)
	CancelLoan(ctx context.Context, actor lending.Actor, loanID string) (*models.Loan, error)
	ChangeStatus(ctx context.Context, actor lending.Actor, loanID string, to models.LoanStatus) (*models.Loan, error)
	ExtendDueDate(ctx context.Context, actor lending.Actor, loanID string, due time.Time) (*models.Loan, error)
	GetLoan(ctx context.Context, actor lending.Actor, loanID string) (*models.Loan, error)
	ListLoans(ctx context.Context, actor lending.Actor, q db.LoanQuery) (*db.PagedLoans, error)
	LoanHistory(ctx context.Context, actor lending.Actor, loanID string) ([]models.LoanAuditLog, error)
}

type AvailabilityService interface {
	Availability(ctx context.Context, q db.AvailabilityQuery) (*db.PagedAvailability, error)
	AvailableCount(ctx context.Context, assetID string) (int64, error)
}

// AssetCatalog 管理员录入资产/单件
type AssetCatalog interface {
	CreateAsset(ctx context.Context, a *models.Asset) error
	FindAssetByID(ctx context.Context, id string) (*models.Asset, error)
	AddAssetUnit(ctx context.Context, u *models.AssetUnit) error
	SetUnitStatus(ctx context.Context, unitID string, st models.AssetStatus) (*models.AssetUnit, error)
}

var (
	_ LoanService         = (*lending.Coordinator)(nil)
	_ AvailabilityService = (*lending.Coordinator)(nil)
	_ AssetCatalog        = (*db.Repo)(nil)
)
