// controllers/loan_controller.go
package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/lending"
	"asset_lending_tool/models"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ svc LoanService }

func NewLoanController(svc LoanService) *LoanController { return &LoanController{svc: svc} }

type loanLineReq struct {
	AssetID     string  `json:"assetId" binding:"required,uuid"`
	AssetUnitID *string `json:"assetUnitId" binding:"omitempty,uuid"`
	Quantity    int     `json:"quantity" binding:"gte=0"`
}

type createLoanReq struct {
	// 为空时默认借给自己
	BorrowerID string        `json:"borrowerId" binding:"omitempty,uuid"`
	DueDate    *time.Time    `json:"dueDate" binding:"omitempty,future"`
	Note       string        `json:"note" binding:"max=255"`
	Lines      []loanLineReq `json:"lines" binding:"dive"`
}

type returnItemReq struct {
	LoanItemID string `json:"loanItemId" binding:"required,uuid"`
}

type changeStatusReq struct {
	Status string `json:"status" binding:"required,loanstatus"`
}

type dueDateReq struct {
	DueDate time.Time `json:"dueDate" binding:"required,future"`
}

// GET /api/loans?status=&borrowerId=&page=&size=
func (lc *LoanController) ListLoans(c *gin.Context) {
	st := models.LoanStatus(c.Query("status"))
	if st != "" && !st.Valid() {
		badRequest(c, errors.New("unknown status"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := lc.svc.ListLoans(c.Request.Context(), app.ActorFrom(c), db.LoanQuery{
		BorrowerID: c.Query("borrowerId"),
		Status:     st,
		Page:       page,
		Size:       size,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// GET /api/loans/:id
func (lc *LoanController) GetLoan(c *gin.Context) {
	l, err := lc.svc.GetLoan(c.Request.Context(), app.ActorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// GET /api/loans/:id/history
func (lc *LoanController) History(c *gin.Context) {
	logs, err := lc.svc.LoanHistory(c.Request.Context(), app.ActorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": logs})
}

// POST /api/loans
func (lc *LoanController) CreateLoan(c *gin.Context) {
	var req createLoanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor := app.ActorFrom(c)
	in := lending.CreateLoanInput{
		BorrowerID: req.BorrowerID,
		DueDate:    req.DueDate,
		Note:       req.Note,
		Lines:      make([]lending.Line, 0, len(req.Lines)),
	}
	if in.BorrowerID == "" {
		in.BorrowerID = actor.UserID
	}
	for _, ln := range req.Lines {
		in.Lines = append(in.Lines, lending.Line{
			AssetID:     ln.AssetID,
			AssetUnitID: ln.AssetUnitID,
			Quantity:    ln.Quantity,
		})
	}

	loan, err := lc.svc.CreateLoan(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// POST /api/loans/:id/return-item
func (lc *LoanController) ReturnItem(c *gin.Context) {
	var req returnItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	loan, err := lc.svc.ReturnItem(c.Request.Context(), app.ActorFrom(c), c.Param("id"), req.LoanItemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/:id/cancel
func (lc *LoanController) CancelLoan(c *gin.Context) {
	loan, err := lc.svc.CancelLoan(c.Request.Context(), app.ActorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// PUT /api/loans/:id/status
func (lc *LoanController) ChangeStatus(c *gin.Context) {
	var req changeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	loan, err := lc.svc.ChangeStatus(c.Request.Context(), app.ActorFrom(c), c.Param("id"), models.LoanStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// PUT /api/loans/:id/due-date
func (lc *LoanController) ExtendDueDate(c *gin.Context) {
	var req dueDateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	loan, err := lc.svc.ExtendDueDate(c.Request.Context(), app.ActorFrom(c), c.Param("id"), req.DueDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}
