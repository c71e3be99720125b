package lending

import (
	"context"
	"time"

	"asset_lending_tool/models"
)

type EventKind string

const (
	EventLoanCreated   EventKind = "loan.created"
	EventItemReturned  EventKind = "loan.item_returned"
	EventLoanOverdue   EventKind = "loan.overdue"
	EventLoanCancelled EventKind = "loan.cancelled"
	EventLoanClosed    EventKind = "loan.closed"
)

// Event is what the notification service receives. It is emitted only after
// the transaction that caused it has committed.
type Event struct {
	Kind       EventKind `json:"kind"`
	LoanID     string    `json:"loanId"`
	EmployeeID string    `json:"employeeId"`
	AssetNames []string  `json:"assetNames"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers lending events. Implementations live in package notify.
type Notifier interface {
	Emit(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// assetNames returns distinct asset names in item order.
func assetNames(items []models.LoanItem) []string {
	seen := make(map[string]struct{}, len(items))
	names := make([]string, 0, len(items))
	for _, it := range items {
		if it.Asset == nil {
			continue
		}
		if _, ok := seen[it.Asset.Name]; ok {
			continue
		}
		seen[it.Asset.Name] = struct{}{}
		names = append(names, it.Asset.Name)
	}
	return names
}
