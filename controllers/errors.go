package controllers

import (
	"context"
	"errors"
	"net/http"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/lending"

	"github.com/gin-gonic/gin"
)

type errMapping struct {
	err    error
	status int
	code   string
}

var errTable = []errMapping{
	{lending.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{lending.ErrForbidden, http.StatusForbidden, "forbidden"},
	{lending.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{lending.ErrLoanItemNotFound, http.StatusNotFound, "loan_item_not_found"},
	{lending.ErrAssetNotFound, http.StatusNotFound, "asset_not_found"},
	{lending.ErrEmptyLoan, http.StatusBadRequest, "empty_loan"},
	{lending.ErrInvalidLine, http.StatusBadRequest, "invalid_line"},
	{lending.ErrInvalidBorrower, http.StatusBadRequest, "invalid_borrower"},
	{lending.ErrInvalidDueDate, http.StatusBadRequest, "invalid_due_date"},
	{lending.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{lending.ErrUnitUnavailable, http.StatusConflict, "unit_unavailable"},
	{lending.ErrAlreadyReturned, http.StatusConflict, "already_returned"},
	{lending.ErrPartiallyFulfilled, http.StatusConflict, "partially_fulfilled"},
	{lending.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{lending.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
	{db.ErrNotFound, http.StatusNotFound, "not_found"},
	{db.ErrDuplicate, http.StatusConflict, "duplicate"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
}

func classifyError(err error) (int, string) {
	for _, m := range errTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError 统一错误响应：{"error": code, "message": ..., "line": {...}}
func writeError(c *gin.Context, err error) {
	status, code := classifyError(err)
	body := app.H{"error": code, "message": err.Error()}

	var le *lending.LineError
	if errors.As(err, &le) {
		line := app.H{"index": le.Index, "assetId": le.AssetID}
		if le.AssetUnitID != nil {
			line["assetUnitId"] = *le.AssetUnitID
		}
		body["line"] = line
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err) // 由访问日志记录
		body["message"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": "bad_request", "message": err.Error()})
}
