package lending

import (
	"time"

	"asset_lending_tool/models"
)

var transitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanOpen:    {models.LoanUse, models.LoanCancelled, models.LoanClosed, models.LoanOverdue},
	models.LoanUse:     {models.LoanCancelled, models.LoanClosed, models.LoanOverdue},
	models.LoanOverdue: {models.LoanUse, models.LoanClosed},
}

// CanTransition reports whether from -> to is a legal edge of the loan lifecycle.
// CLOSED and CANCELLED have no outgoing edges.
func CanTransition(from, to models.LoanStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EffectiveStatus is the status a reader should see: an OPEN or USE loan whose
// due date has passed is OVERDUE even before the sweeper persists it.
func EffectiveStatus(status models.LoanStatus, due *time.Time, now time.Time) models.LoanStatus {
	if (status == models.LoanOpen || status == models.LoanUse) && due != nil && due.Before(now) {
		return models.LoanOverdue
	}
	return status
}
