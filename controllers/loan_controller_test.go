package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/lending"
	"asset_lending_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoans struct {
	lastActor lending.Actor
	lastIn    lending.CreateLoanInput
	lastQuery db.LoanQuery
	err       error
}

func (f *fakeLoans) CreateLoan(_ context.Context, actor lending.Actor, in lending.CreateLoanInput) (*models.Loan, error) {
	f.lastActor, f.lastIn = actor, in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: "loan-1", BorrowerID: in.BorrowerID, Status: models.LoanOpen}, nil
}

func (f *fakeLoans) ReturnItem(_ context.Context, actor lending.Actor, loanID, _ string) (*models.Loan, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: loanID, Status: models.LoanClosed}, nil
}

func (f *fakeLoans) CancelLoan(_ context.Context, _ lending.Actor, loanID string) (*models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: loanID, Status: models.LoanCancelled}, nil
}

func (f *fakeLoans) ChangeStatus(_ context.Context, _ lending.Actor, loanID string, to models.LoanStatus) (*models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: loanID, Status: to}, nil
}

func (f *fakeLoans) ExtendDueDate(_ context.Context, _ lending.Actor, loanID string, due time.Time) (*models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: loanID, Status: models.LoanUse, DueDate: &due}, nil
}

func (f *fakeLoans) GetLoan(_ context.Context, _ lending.Actor, loanID string) (*models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Loan{ID: loanID}, nil
}

func (f *fakeLoans) ListLoans(_ context.Context, _ lending.Actor, q db.LoanQuery) (*db.PagedLoans, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &db.PagedLoans{Total: 0, Items: []models.Loan{}}, nil
}

func (f *fakeLoans) LoanHistory(_ context.Context, _ lending.Actor, _ string) ([]models.LoanAuditLog, error) {
	return nil, f.err
}

func newLoanRouter(t *testing.T, svc LoanService, userID string, isAdmin bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, app.RegisterValidators())

	lc := NewLoanController(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("isAdmin", isAdmin)
		c.Next()
	})
	r.GET("/api/loans", lc.ListLoans)
	r.POST("/api/loans", lc.CreateLoan)
	r.POST("/api/loans/:id/return-item", lc.ReturnItem)
	r.PUT("/api/loans/:id/status", lc.ChangeStatus)
	r.PUT("/api/loans/:id/due-date", lc.ExtendDueDate)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateLoan_DefaultsBorrowerToCaller(t *testing.T) {
	svc := &fakeLoans{}
	me := uuid.NewString()
	r := newLoanRouter(t, svc, me, false)

	w := doJSON(r, http.MethodPost, "/api/loans", app.H{
		"lines": []app.H{{"assetId": uuid.NewString(), "quantity": 2}},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, me, svc.lastIn.BorrowerID)
	assert.Equal(t, me, svc.lastActor.UserID)
	require.Len(t, svc.lastIn.Lines, 1)
	assert.Equal(t, 2, svc.lastIn.Lines[0].Quantity)
}

func TestCreateLoan_RejectsMalformedBody(t *testing.T) {
	r := newLoanRouter(t, &fakeLoans{}, uuid.NewString(), false)

	w := doJSON(r, http.MethodPost, "/api/loans", app.H{
		"lines": []app.H{{"assetId": "not-a-uuid", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/loans", app.H{
		"dueDate": time.Now().Add(-time.Hour),
		"lines":   []app.H{{"assetId": uuid.NewString(), "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateLoan_LineErrorBody(t *testing.T) {
	assetID := uuid.NewString()
	svc := &fakeLoans{err: &lending.LineError{Index: 1, AssetID: assetID, Err: lending.ErrInsufficientStock}}
	r := newLoanRouter(t, svc, uuid.NewString(), false)

	w := doJSON(r, http.MethodPost, "/api/loans", app.H{
		"lines": []app.H{{"assetId": assetID, "quantity": 1}},
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "insufficient_stock", body["error"])
	line, ok := body["line"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), line["index"])
	assert.Equal(t, assetID, line["assetId"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{lending.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
		{lending.ErrAlreadyReturned, http.StatusConflict, "already_returned"},
		{fmt.Errorf("%w: CLOSED -> USE", lending.ErrIllegalTransition), http.StatusConflict, "illegal_transition"},
		{lending.ErrForbidden, http.StatusForbidden, "forbidden"},
		{lending.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
	}
	for _, tc := range cases {
		r := newLoanRouter(t, &fakeLoans{err: tc.err}, uuid.NewString(), true)
		w := doJSON(r, http.MethodPost, "/api/loans/"+uuid.NewString()+"/return-item", app.H{"loanItemId": uuid.NewString()})
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, decode(t, w)["error"])
	}
}

func TestInternalErrorIsHidden(t *testing.T) {
	r := newLoanRouter(t, &fakeLoans{err: fmt.Errorf("pq: connection refused")}, uuid.NewString(), true)

	w := doJSON(r, http.MethodGet, "/api/loans", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal", body["error"])
	assert.Equal(t, "internal error", body["message"])
}

func TestListLoans_StatusFilter(t *testing.T) {
	svc := &fakeLoans{}
	r := newLoanRouter(t, svc, uuid.NewString(), true)

	w := doJSON(r, http.MethodGet, "/api/loans?status=OVERDUE&page=2&size=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LoanOverdue, svc.lastQuery.Status)
	assert.Equal(t, 2, svc.lastQuery.Page)
	assert.Equal(t, 5, svc.lastQuery.Size)

	w = doJSON(r, http.MethodGet, "/api/loans?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeStatus_ValidatesStatus(t *testing.T) {
	r := newLoanRouter(t, &fakeLoans{}, uuid.NewString(), true)

	w := doJSON(r, http.MethodPut, "/api/loans/"+uuid.NewString()+"/status", app.H{"status": "BORROWED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/api/loans/"+uuid.NewString()+"/status", app.H{"status": "USE"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "USE", decode(t, w)["status"])
}

func TestExtendDueDate_RequiresFutureDate(t *testing.T) {
	r := newLoanRouter(t, &fakeLoans{}, uuid.NewString(), true)

	w := doJSON(r, http.MethodPut, "/api/loans/"+uuid.NewString()+"/due-date", app.H{"dueDate": time.Now().Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/api/loans/"+uuid.NewString()+"/due-date", app.H{"dueDate": time.Now().Add(48 * time.Hour)})
	assert.Equal(t, http.StatusOK, w.Code)
}
