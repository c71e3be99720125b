package lending

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrUnitUnavailable     = errors.New("unit unavailable")
	ErrInvalidBorrower     = errors.New("invalid borrower")
	ErrEmptyLoan           = errors.New("loan has no lines")
	ErrAlreadyReturned     = errors.New("loan item already returned")
	ErrLoanItemNotFound    = errors.New("loan item not found")
	ErrPartiallyFulfilled  = errors.New("loan has returned items")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrLoanNotFound   = errors.New("loan not found")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrInvalidLine    = errors.New("invalid loan line")
	ErrInvalidDueDate = errors.New("due date must be in the future")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
)

// LineError identifies the request line that made CreateLoan fail.
type LineError struct {
	Index       int
	AssetID     string
	AssetUnitID *string
	Err         error
}

func (e *LineError) Error() string {
	if e.AssetUnitID != nil {
		return fmt.Sprintf("line %d (asset %s, unit %s): %v", e.Index, e.AssetID, *e.AssetUnitID, e.Err)
	}
	return fmt.Sprintf("line %d (asset %s): %v", e.Index, e.AssetID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
