package lending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"asset_lending_tool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOverdueStore struct {
	mu         sync.Mutex
	candidates []models.Loan
	stale      map[string]bool
	unnotified []models.Loan
	claimed    map[string]bool
	released   []string
	audits     []*models.LoanAuditLog
	marked     []string
}

func newFakeOverdueStore() *fakeOverdueStore {
	return &fakeOverdueStore{stale: map[string]bool{}, claimed: map[string]bool{}}
}

func (f *fakeOverdueStore) ListOverdueCandidates(_ context.Context, _ time.Time, _ int) ([]models.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Loan(nil), f.candidates...), nil
}

func (f *fakeOverdueStore) MarkOverdue(_ context.Context, id string, _ int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale[id] {
		return false, nil
	}
	f.marked = append(f.marked, id)
	for i := range f.candidates {
		if f.candidates[i].ID == id {
			l := f.candidates[i]
			l.Status = models.LoanOverdue
			f.unnotified = append(f.unnotified, l)
		}
	}
	return true, nil
}

func (f *fakeOverdueStore) ListUnnotifiedOverdue(_ context.Context, _ int) ([]models.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Loan
	for _, l := range f.unnotified {
		if !f.claimed[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeOverdueStore) ClaimOverdueNotice(_ context.Context, id string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeOverdueStore) ReleaseOverdueNotice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, id)
	f.released = append(f.released, id)
	return nil
}

func (f *fakeOverdueStore) AppendLoanAudit(_ context.Context, e *models.LoanAuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, e)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (r *recordingNotifier) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func overdueLoan(id string) models.Loan {
	due := time.Now().Add(-time.Hour)
	return models.Loan{
		ID:         id,
		BorrowerID: "emp-1",
		Status:     models.LoanUse,
		DueDate:    &due,
		Version:    2,
		Items: []models.LoanItem{
			{ID: id + "-i1", Asset: &models.Asset{Name: "Laptop"}},
			{ID: id + "-i2", Asset: &models.Asset{Name: "Laptop"}},
			{ID: id + "-i3", Asset: &models.Asset{Name: "Charger"}},
		},
	}
}

func Test_Sweeper_FlipsAndNotifiesOnce(t *testing.T) {
	store := newFakeOverdueStore()
	store.candidates = []models.Loan{overdueLoan("l1")}
	n := &recordingNotifier{}
	s := NewSweeper(store, n, nil, time.Hour)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Flipped: 1, Notified: 1}, res)
	require.Len(t, n.events, 1)
	assert.Equal(t, EventLoanOverdue, n.events[0].Kind)
	assert.Equal(t, "emp-1", n.events[0].EmployeeID)
	assert.Equal(t, []string{"Laptop", "Charger"}, n.events[0].AssetNames)
	require.Len(t, store.audits, 1)
	assert.Equal(t, "OVERDUE", store.audits[0].ToStatus)
	assert.Nil(t, store.audits[0].ActorID)

	// second sweep must not notify again
	store.candidates = nil
	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)
	assert.Len(t, n.events, 1)
}

func Test_Sweeper_SkipsStaleLoan(t *testing.T) {
	store := newFakeOverdueStore()
	store.candidates = []models.Loan{overdueLoan("l1")}
	store.stale["l1"] = true
	n := &recordingNotifier{}

	res, err := NewSweeper(store, n, nil, time.Hour).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Empty(t, n.events)
	assert.Empty(t, store.audits)
}

func Test_Sweeper_ReleasesClaimWhenNotifyFails(t *testing.T) {
	store := newFakeOverdueStore()
	store.candidates = []models.Loan{overdueLoan("l1")}
	n := &recordingNotifier{fail: errors.New("smtp down")}
	s := NewSweeper(store, n, nil, time.Hour)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"l1"}, store.released)

	// notifier recovers: the notice goes out on the next sweep
	n.fail = nil
	store.candidates = nil
	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
	assert.Len(t, n.events, 1)
}

func Test_Sweeper_StartStop(t *testing.T) {
	store := newFakeOverdueStore()
	store.candidates = []models.Loan{overdueLoan("l1")}
	n := &recordingNotifier{}
	s := NewSweeper(store, n, nil, time.Hour)

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.events) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func Test_Sweeper_StopWithoutStart(t *testing.T) {
	s := NewSweeper(newFakeOverdueStore(), nil, nil, 0)
	s.Stop()
}
