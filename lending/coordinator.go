package lending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"asset_lending_tool/db"
	"asset_lending_tool/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Actor is the authenticated caller of a lending operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// Line is one requested position of a loan: either a quantity of a bulk
// asset or one specific unit of a serialized asset.
type Line struct {
	AssetID     string  `json:"assetId"`
	AssetUnitID *string `json:"assetUnitId,omitempty"`
	Quantity    int     `json:"quantity"`
}

type CreateLoanInput struct {
	BorrowerID string
	DueDate    *time.Time
	Note       string
	Lines      []Line
}

type Options struct {
	// Applied with SET LOCAL in every transaction; zero keeps the server default.
	LockTimeout time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	// Used when a loan is created without a due date; zero means open-ended.
	DefaultLoanPeriod time.Duration
}

// Coordinator runs every lending operation as one database transaction:
// reservations, loan rows and status changes commit or roll back together.
type Coordinator struct {
	repo     *db.Repo
	notifier Notifier
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewCoordinator(repo *db.Repo, notifier Notifier, log *zap.Logger, opts Options) *Coordinator {
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, Event) error { return nil })
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	return &Coordinator{
		repo:     repo,
		notifier: notifier,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// SQLSTATEs worth another attempt: serialization failure, deadlock, lock timeout.
var retryableSQLStates = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
}

func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrStaleLoan) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryableSQLStates[pgErr.Code]; ok {
			return fmt.Errorf("%w: %s (%s)", ErrConcurrencyConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

func translateInventoryErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return ErrAssetNotFound
	case errors.Is(err, db.ErrInsufficientStock):
		return ErrInsufficientStock
	case errors.Is(err, db.ErrUnitUnavailable):
		return ErrUnitUnavailable
	case errors.Is(err, db.ErrAllocationMode):
		return ErrInvalidLine
	case errors.Is(err, db.ErrAlreadyReleased):
		return ErrAlreadyReturned
	}
	return err
}

func (c *Coordinator) inTx(ctx context.Context, op string, fn func(tx *db.Repo) error) error {
	return RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		err := c.repo.WithTx(ctx, func(tx *db.Repo) error {
			if err := tx.SetLockTimeout(ctx, c.opts.LockTimeout); err != nil {
				return err
			}
			return fn(tx)
		})
		return classifyDBError(err)
	},
		WithMaxAttempts(c.opts.MaxAttempts),
		WithBaseDelay(c.opts.BaseDelay),
		WithOnRetry(func(attempt int, err error) {
			c.log.Warn("retrying lending transaction",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
}

func (c *Coordinator) emit(ctx context.Context, kind EventKind, l *models.Loan, items []models.LoanItem, at time.Time) {
	ev := Event{
		Kind:       kind,
		LoanID:     l.ID,
		EmployeeID: l.BorrowerID,
		AssetNames: assetNames(items),
		OccurredAt: at,
	}
	if err := c.notifier.Emit(ctx, ev); err != nil {
		c.log.Warn("emit lending event failed",
			zap.String("kind", string(kind)), zap.String("loan_id", l.ID), zap.Error(err))
	}
}

func newAudit(loanID string, itemID *string, actorID string, action string, from, to models.LoanStatus, detail string) *models.LoanAuditLog {
	entry := &models.LoanAuditLog{
		LoanID:     loanID,
		LoanItemID: itemID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if detail != "" {
		entry.Detail = &detail
	}
	return entry
}

// present applies lazy overdue evaluation to a loan about to be returned to a caller.
func present(l *models.Loan, now time.Time) *models.Loan {
	if eff := EffectiveStatus(l.Status, l.DueDate, now); eff != l.Status {
		l.Status = eff
		l.WasOverdue = true
	}
	return l
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type plannedLine struct {
	Line
	index int
}

func (p plannedLine) lockKey() string {
	if p.AssetUnitID != nil {
		return *p.AssetUnitID
	}
	return p.AssetID
}

func (p plannedLine) lineError(err error) error {
	return &LineError{Index: p.index, AssetID: p.AssetID, AssetUnitID: p.AssetUnitID, Err: err}
}

// planLines validates the shape of every line and normalizes unit lines to quantity 1.
func planLines(lines []Line) ([]plannedLine, error) {
	out := make([]plannedLine, 0, len(lines))
	units := make(map[string]struct{})
	for i, ln := range lines {
		pl := plannedLine{Line: ln, index: i}
		pl.AssetID = strings.TrimSpace(ln.AssetID)
		if !validID(pl.AssetID) {
			return nil, pl.lineError(ErrInvalidLine)
		}
		if ln.AssetUnitID != nil {
			unitID := strings.TrimSpace(*ln.AssetUnitID)
			pl.AssetUnitID = &unitID
			if !validID(unitID) || (ln.Quantity != 0 && ln.Quantity != 1) {
				return nil, pl.lineError(ErrInvalidLine)
			}
			if _, dup := units[unitID]; dup {
				return nil, pl.lineError(ErrUnitUnavailable)
			}
			units[unitID] = struct{}{}
			pl.Quantity = 1
		} else if ln.Quantity <= 0 {
			return nil, pl.lineError(ErrInvalidLine)
		}
		out = append(out, pl)
	}
	return out, nil
}

// CreateLoan reserves every line and records the loan as OPEN, or persists nothing.
func (c *Coordinator) CreateLoan(ctx context.Context, actor Actor, in CreateLoanInput) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	borrowerID := strings.TrimSpace(in.BorrowerID)
	if borrowerID == "" || !validID(borrowerID) {
		return nil, ErrInvalidBorrower
	}
	if !actor.IsAdmin && borrowerID != actor.UserID {
		return nil, ErrForbidden
	}
	if len(in.Lines) == 0 {
		return nil, ErrEmptyLoan
	}

	now := c.now().UTC()
	due := in.DueDate
	if due == nil && c.opts.DefaultLoanPeriod > 0 {
		d := now.Add(c.opts.DefaultLoanPeriod)
		due = &d
	}
	if due != nil {
		d := due.UTC()
		if !d.After(now) {
			return nil, ErrInvalidDueDate
		}
		due = &d
	}

	lines, err := planLines(in.Lines)
	if err != nil {
		return nil, err
	}
	// 统一加锁顺序，避免两个借用交叉等待
	ordered := make([]plannedLine, len(lines))
	copy(ordered, lines)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].lockKey() < ordered[j].lockKey() })

	var loan *models.Loan
	err = c.inTx(ctx, "create_loan", func(tx *db.Repo) error {
		borrower, err := tx.FindUserByID(ctx, borrowerID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrInvalidBorrower
		}
		if err != nil {
			return err
		}
		if !borrower.Active {
			return ErrInvalidBorrower
		}

		l := &models.Loan{
			ID:         uuid.NewString(),
			BorrowerID: borrower.ID,
			CreatedBy:  actor.UserID,
			Status:     models.LoanOpen,
			StartDate:  now,
			DueDate:    due,
			Note:       strings.TrimSpace(in.Note),
			Version:    1,
		}
		if err := tx.CreateLoan(ctx, l); err != nil {
			return err
		}

		// 同一资产的多行按累计数量校验
		assets := make([]*models.Asset, len(lines))
		requested := make(map[string]int)
		for _, pl := range ordered {
			a, err := c.reserveLine(ctx, tx, pl, requested)
			if err != nil {
				return pl.lineError(err)
			}
			assets[pl.index] = a
		}

		items := make([]models.LoanItem, 0, len(lines))
		for _, pl := range lines {
			it := models.LoanItem{
				ID:          uuid.NewString(),
				LoanID:      l.ID,
				AssetID:     pl.AssetID,
				AssetUnitID: pl.AssetUnitID,
				Quantity:    pl.Quantity,
				StartAt:     now,
				DueAt:       due,
			}
			if err := tx.InsertLoanItem(ctx, &it); err != nil {
				return pl.lineError(translateInventoryErr(err))
			}
			it.Asset = assets[pl.index]
			items = append(items, it)
		}
		l.Items = items

		if err := tx.AppendLoanAudit(ctx, newAudit(l.ID, nil, actor.UserID, "created", "", models.LoanOpen, "")); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("loan created",
		zap.String("loan_id", loan.ID), zap.String("borrower_id", loan.BorrowerID), zap.Int("lines", len(loan.Items)))
	c.emit(ctx, EventLoanCreated, loan, loan.Items, now)
	return loan, nil
}

func (c *Coordinator) reserveLine(ctx context.Context, tx *db.Repo, pl plannedLine, requested map[string]int) (*models.Asset, error) {
	if pl.AssetUnitID == nil {
		requested[pl.AssetID] += pl.Quantity
		a, err := tx.ReserveBulk(ctx, pl.AssetID, requested[pl.AssetID])
		if err != nil {
			return nil, translateInventoryErr(err)
		}
		return a, nil
	}

	a, err := tx.FindAssetByID(ctx, pl.AssetID)
	if err != nil {
		return nil, translateInventoryErr(err)
	}
	if !a.IsSerialized {
		return nil, ErrInvalidLine
	}
	u, err := tx.ReserveUnit(ctx, *pl.AssetUnitID)
	if err != nil {
		return nil, translateInventoryErr(err)
	}
	if u.AssetID != a.ID {
		return nil, ErrInvalidLine
	}
	if a.Status != models.AssetActive {
		return nil, ErrUnitUnavailable
	}
	return a, nil
}

func (c *Coordinator) lockLoan(ctx context.Context, tx *db.Repo, loanID string, actor Actor) (*models.Loan, error) {
	if !validID(loanID) {
		return nil, ErrLoanNotFound
	}
	l, err := tx.LockLoan(ctx, loanID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && l.BorrowerID != actor.UserID {
		return nil, ErrForbidden
	}
	return l, nil
}

func (c *Coordinator) closeLoan(ctx context.Context, tx *db.Repo, l *models.Loan, effective models.LoanStatus, actorID string, now time.Time) error {
	from := l.Status
	wasOverdue := l.WasOverdue || effective == models.LoanOverdue
	if err := tx.UpdateLoanStatus(ctx, l, models.LoanClosed, map[string]any{
		"closed_at":   now,
		"was_overdue": wasOverdue,
	}); err != nil {
		return err
	}
	l.ClosedAt = &now
	l.WasOverdue = wasOverdue
	return tx.AppendLoanAudit(ctx, newAudit(l.ID, nil, actorID, "closed", from, models.LoanClosed, ""))
}

// ReturnItem releases one loan item. The loan closes when its last outstanding item comes back.
func (c *Coordinator) ReturnItem(ctx context.Context, actor Actor, loanID, loanItemID string) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	var (
		loan     *models.Loan
		returned models.LoanItem
		closed   bool
		now      time.Time
	)
	err := c.inTx(ctx, "return_item", func(tx *db.Repo) error {
		now = c.now().UTC()
		closed = false

		l, err := c.lockLoan(ctx, tx, loanID, actor)
		if err != nil {
			return err
		}
		items, err := tx.ListLoanItems(ctx, l.ID)
		if err != nil {
			return err
		}
		idx, outstanding := -1, 0
		for i, it := range items {
			if it.ID == loanItemID {
				idx = i
			}
			if it.Outstanding() {
				outstanding++
			}
		}
		if idx < 0 {
			return ErrLoanItemNotFound
		}
		if !items[idx].Outstanding() {
			return ErrAlreadyReturned
		}

		if err := tx.Release(ctx, loanItemID, now, actor.UserID); err != nil {
			return translateInventoryErr(err)
		}
		items[idx].ReturnedAt = &now
		items[idx].ReturnedBy = &actor.UserID
		if err := tx.AppendLoanAudit(ctx, newAudit(l.ID, &loanItemID, actor.UserID, "item_returned", l.Status, l.Status, "")); err != nil {
			return err
		}

		if outstanding == 1 {
			if err := c.closeLoan(ctx, tx, l, EffectiveStatus(l.Status, l.DueDate, now), actor.UserID, now); err != nil {
				return err
			}
			closed = true
		}
		l.Items = items
		returned = items[idx]
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, EventItemReturned, loan, []models.LoanItem{returned}, now)
	if closed {
		c.emit(ctx, EventLoanClosed, loan, loan.Items, now)
	}
	return present(loan, now), nil
}

// CancelLoan releases every reservation of a loan nothing has been returned from yet.
func (c *Coordinator) CancelLoan(ctx context.Context, actor Actor, loanID string) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	var (
		loan *models.Loan
		now  time.Time
	)
	err := c.inTx(ctx, "cancel_loan", func(tx *db.Repo) error {
		now = c.now().UTC()
		l, err := c.lockLoan(ctx, tx, loanID, actor)
		if err != nil {
			return err
		}
		if l.Status.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.Status, models.LoanCancelled)
		}
		items, err := tx.ListLoanItems(ctx, l.ID)
		if err != nil {
			return err
		}
		// 有归还过的明细优先报 PartiallyFulfilled，再看逾期
		for _, it := range items {
			if !it.Outstanding() {
				return ErrPartiallyFulfilled
			}
		}
		eff := EffectiveStatus(l.Status, l.DueDate, now)
		if !CanTransition(eff, models.LoanCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, eff, models.LoanCancelled)
		}
		for i := range items {
			if err := tx.Release(ctx, items[i].ID, now, actor.UserID); err != nil {
				return translateInventoryErr(err)
			}
			items[i].ReturnedAt = &now
			items[i].ReturnedBy = &actor.UserID
		}

		from := l.Status
		if err := tx.UpdateLoanStatus(ctx, l, models.LoanCancelled, map[string]any{"cancelled_at": now}); err != nil {
			return err
		}
		l.CancelledAt = &now
		if err := tx.AppendLoanAudit(ctx, newAudit(l.ID, nil, actor.UserID, "cancelled", from, models.LoanCancelled, "")); err != nil {
			return err
		}
		l.Items = items
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, EventLoanCancelled, loan, loan.Items, now)
	return loan, nil
}

// ChangeStatus applies a manual transition. OVERDUE is only ever set by the sweeper.
func (c *Coordinator) ChangeStatus(ctx context.Context, actor Actor, loanID string, to models.LoanStatus) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	switch to {
	case models.LoanCancelled:
		return c.CancelLoan(ctx, actor, loanID)
	case models.LoanUse, models.LoanClosed:
	default:
		return nil, fmt.Errorf("%w: cannot set %q manually", ErrIllegalTransition, to)
	}
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	var (
		loan *models.Loan
		now  time.Time
	)
	err := c.inTx(ctx, "change_status", func(tx *db.Repo) error {
		now = c.now().UTC()

		l, err := c.lockLoan(ctx, tx, loanID, actor)
		if err != nil {
			return err
		}
		eff := EffectiveStatus(l.Status, l.DueDate, now)
		if !CanTransition(eff, to) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, eff, to)
		}
		items, err := tx.ListLoanItems(ctx, l.ID)
		if err != nil {
			return err
		}

		switch to {
		case models.LoanUse:
			if eff == models.LoanOverdue && (l.DueDate == nil || !l.DueDate.After(now)) {
				return fmt.Errorf("%w: due date has passed", ErrIllegalTransition)
			}
			from := l.Status
			fields := map[string]any{}
			if l.PickedUpAt == nil {
				fields["picked_up_at"] = now
			}
			if from == models.LoanOverdue {
				fields["overdue_notified_at"] = nil
			}
			if err := tx.UpdateLoanStatus(ctx, l, models.LoanUse, fields); err != nil {
				return err
			}
			if l.PickedUpAt == nil {
				l.PickedUpAt = &now
			}
			if err := tx.AppendLoanAudit(ctx, newAudit(l.ID, nil, actor.UserID, "status_changed", from, models.LoanUse, "")); err != nil {
				return err
			}
		case models.LoanClosed:
			for i := range items {
				if !items[i].Outstanding() {
					continue
				}
				if err := tx.Release(ctx, items[i].ID, now, actor.UserID); err != nil {
					return translateInventoryErr(err)
				}
				items[i].ReturnedAt = &now
				items[i].ReturnedBy = &actor.UserID
			}
			if err := c.closeLoan(ctx, tx, l, eff, actor.UserID, now); err != nil {
				return err
			}
		}
		l.Items = items
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	if to == models.LoanClosed {
		c.emit(ctx, EventLoanClosed, loan, loan.Items, now)
	}
	return present(loan, now), nil
}

// ExtendDueDate moves the due date into the future. An OVERDUE loan goes back to USE,
// or to OPEN if it was never picked up, and becomes eligible for a new overdue notice.
func (c *Coordinator) ExtendDueDate(ctx context.Context, actor Actor, loanID string, due time.Time) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	var (
		loan *models.Loan
		now  time.Time
	)
	err := c.inTx(ctx, "extend_due_date", func(tx *db.Repo) error {
		now = c.now().UTC()
		d := due.UTC()
		if !d.After(now) {
			return ErrInvalidDueDate
		}
		l, err := c.lockLoan(ctx, tx, loanID, actor)
		if err != nil {
			return err
		}
		if l.Status.Terminal() {
			return fmt.Errorf("%w: loan is %s", ErrIllegalTransition, l.Status)
		}

		from := l.Status
		// 逾期恢复：已领取回到 USE，从未领取回到 OPEN
		restored := models.LoanUse
		if l.PickedUpAt == nil {
			restored = models.LoanOpen
		}
		fields := map[string]any{}
		if from == models.LoanOverdue {
			fields["status"] = restored
			fields["overdue_notified_at"] = nil
		}
		var detail string
		if l.DueDate != nil {
			detail = fmt.Sprintf("due %s -> %s", l.DueDate.UTC().Format(time.RFC3339), d.Format(time.RFC3339))
		} else {
			detail = "due -> " + d.Format(time.RFC3339)
		}
		if err := tx.UpdateLoanDueDate(ctx, l, d, fields); err != nil {
			return err
		}
		if from == models.LoanOverdue {
			l.Status = restored
			l.OverdueNotifiedAt = nil
		}
		if err := tx.AppendLoanAudit(ctx, newAudit(l.ID, nil, actor.UserID, "due_date_changed", from, l.Status, detail)); err != nil {
			return err
		}
		items, err := tx.ListLoanItems(ctx, l.ID)
		if err != nil {
			return err
		}
		l.Items = items
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return present(loan, now), nil
}

// Reads

func (c *Coordinator) GetLoan(ctx context.Context, actor Actor, loanID string) (*models.Loan, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if !validID(loanID) {
		return nil, ErrLoanNotFound
	}
	l, err := c.repo.FindLoan(ctx, loanID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && l.BorrowerID != actor.UserID {
		return nil, ErrForbidden
	}
	return present(l, c.now().UTC()), nil
}

// ListLoans filters by effective status. Non-admins only ever see their own loans.
func (c *Coordinator) ListLoans(ctx context.Context, actor Actor, q db.LoanQuery) (*db.PagedLoans, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.IsAdmin {
		q.BorrowerID = actor.UserID
	}
	now := c.now().UTC()
	q.Now = now
	res, err := c.repo.ListLoans(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range res.Items {
		present(&res.Items[i], now)
	}
	return res, nil
}

func (c *Coordinator) LoanHistory(ctx context.Context, actor Actor, loanID string) ([]models.LoanAuditLog, error) {
	if _, err := c.GetLoan(ctx, actor, loanID); err != nil {
		return nil, err
	}
	return c.repo.ListLoanAudit(ctx, loanID)
}

func (c *Coordinator) Availability(ctx context.Context, q db.AvailabilityQuery) (*db.PagedAvailability, error) {
	return c.repo.ListAvailability(ctx, q)
}

func (c *Coordinator) AvailableCount(ctx context.Context, assetID string) (int64, error) {
	if !validID(assetID) {
		return 0, ErrAssetNotFound
	}
	n, err := c.repo.AvailableCount(ctx, assetID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, ErrAssetNotFound
	}
	return n, err
}
