package lending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"asset_lending_tool/models"

	"go.uber.org/zap"
)

// OverdueStore is the slice of the repository the sweeper needs. *db.Repo implements it.
type OverdueStore interface {
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
	MarkOverdue(ctx context.Context, id string, version int64, now time.Time) (bool, error)
	ListUnnotifiedOverdue(ctx context.Context, limit int) ([]models.Loan, error)
	ClaimOverdueNotice(ctx context.Context, id string, at time.Time) (bool, error)
	ReleaseOverdueNotice(ctx context.Context, id string) error
	AppendLoanAudit(ctx context.Context, entry *models.LoanAuditLog) error
}

const defaultSweepBatch = 500

type SweepResult struct {
	Flipped  int
	Notified int
	Failed   int
}

// Sweeper periodically persists OVERDUE for loans past their due date and sends
// one overdue notice per loan.
type Sweeper struct {
	store    OverdueStore
	notifier Notifier
	log      *zap.Logger
	interval time.Duration
	batch    int
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

func NewSweeper(store OverdueStore, notifier Notifier, log *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, Event) error { return nil })
	}
	return &Sweeper{
		store:    store,
		notifier: notifier,
		log:      log,
		interval: interval,
		batch:    defaultSweepBatch,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until Stop or ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.log.Info("starting overdue sweeper", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop signals the loop and waits for the sweep in progress to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("stopping overdue sweeper")
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.log.Info("overdue sweeper stopped")
			return
		case <-ctx.Done():
			s.log.Info("overdue sweeper cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if res.Flipped > 0 || res.Notified > 0 || res.Failed > 0 {
		s.log.Info("overdue sweep finished",
			zap.Int("flipped", res.Flipped), zap.Int("notified", res.Notified), zap.Int("failed", res.Failed))
	}
}

// RunOnce performs one sweep. Each loan is handled on its own; a failure is
// logged and counted, never aborting the rest of the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()

	candidates, err := s.store.ListOverdueCandidates(ctx, now, s.batch)
	if err != nil {
		return res, err
	}
	for _, l := range candidates {
		ok, err := s.store.MarkOverdue(ctx, l.ID, l.Version, now)
		if err != nil {
			res.Failed++
			s.log.Warn("mark overdue failed", zap.String("loan_id", l.ID), zap.Error(err))
			continue
		}
		if !ok {
			// 已被其他事务改动（归还/延期），下一轮重新判断
			continue
		}
		res.Flipped++
		if err := s.store.AppendLoanAudit(ctx, newAudit(l.ID, nil, "", "overdue", l.Status, models.LoanOverdue, "")); err != nil {
			s.log.Warn("overdue audit failed", zap.String("loan_id", l.ID), zap.Error(err))
		}
	}

	pending, err := s.store.ListUnnotifiedOverdue(ctx, s.batch)
	if err != nil {
		return res, err
	}
	for i := range pending {
		l := &pending[i]
		claimed, err := s.store.ClaimOverdueNotice(ctx, l.ID, now)
		if err != nil {
			res.Failed++
			s.log.Warn("claim overdue notice failed", zap.String("loan_id", l.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		ev := Event{
			Kind:       EventLoanOverdue,
			LoanID:     l.ID,
			EmployeeID: l.BorrowerID,
			AssetNames: assetNames(l.Items),
			OccurredAt: now,
		}
		if err := s.notifier.Emit(ctx, ev); err != nil {
			res.Failed++
			s.log.Warn("overdue notice failed, will retry", zap.String("loan_id", l.ID), zap.Error(err))
			if rerr := s.store.ReleaseOverdueNotice(ctx, l.ID); rerr != nil {
				s.log.Error("release overdue notice failed", zap.String("loan_id", l.ID), zap.Error(rerr))
			}
			continue
		}
		res.Notified++
	}
	return res, nil
}
