package routes

import (
	"asset_lending_tool/app"
	"asset_lending_tool/controllers"
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	uc := controllers.GetUserController(s.Repo, s.AppSess, s.Cfg, s.Log)
	loanCtl := controllers.NewLoanController(s.Lending)
	assetCtl := controllers.NewAssetController(s.Lending, s.Repo)
	sessCtl := controllers.NewSessionController(s.AppSess, s.Repo, s.Cfg)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo, s.Cfg)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, s.Cfg.SeenThrottle)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	RegisterDevRoutes(r, s.Cfg, sessCtl)

	api := r.Group("/api", authMW, seenMW)
	{
		api.GET("/me", uc.Me)
		api.POST("/logout", sessCtl.Logout)
	}

	// ------------------------------
	// 员工管理（仅管理员）
	// ------------------------------
	users := api.Group("/users", adminMW)
	{
		users.GET("", uc.ListUsers)   // ?q=&page=&size=
		users.GET("/:id", uc.GetUser) // 精确查单个
		users.POST("/:id/deactivate", uc.DeactivateUser)
	}

	// ------------------------------
	// 资产：浏览可借数量；录入仅管理员
	// ------------------------------
	assets := api.Group("/assets")
	{
		assets.GET("/available", assetCtl.ListAvailable) // ?q=&categoryId=&onlyAvailable=&page=&size=
		assets.GET("/:id/available", assetCtl.AvailableCount)
		assets.POST("", adminMW, assetCtl.CreateAsset)
		assets.POST("/:id/units", adminMW, assetCtl.AddUnit)
	}
	api.PUT("/asset-units/:id/status", adminMW, assetCtl.SetUnitStatus)

	// ------------------------------
	// 借还
	// ------------------------------
	loans := api.Group("/loans")
	{
		loans.GET("", loanCtl.ListLoans) // ?status=&borrowerId=
		loans.GET("/:id", loanCtl.GetLoan)
		loans.GET("/:id/history", loanCtl.History)
		loans.POST("", loanCtl.CreateLoan)
		loans.POST("/:id/return-item", loanCtl.ReturnItem)
		loans.POST("/:id/cancel", loanCtl.CancelLoan)
		// 以下两项在协调器内校验管理员
		loans.PUT("/:id/status", loanCtl.ChangeStatus)
		loans.PUT("/:id/due-date", loanCtl.ExtendDueDate)
	}
}

// RegisterDevRoutes 仅在 DEV_LOGIN=true 时挂载本地登录
func RegisterDevRoutes(r gin.IRouter, cfg app.Config, sessCtl *controllers.SessionController) {
	if !cfg.DevLogin {
		return
	}
	r.POST("/dev/login", sessCtl.DevLogin)
}
