package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListRefreshable(ctx context.Context, from, to time.Time, limit int) ([]*models.Appointment, error) {
	args := m.Called(ctx, from, to, limit)
	appts, _ := args.Get(0).([]*models.Appointment)
	return appts, args.Error(1)
}

type mockRescorer struct {
	mock.Mock
}

func (m *mockRescorer) RefreshRisk(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (*appointment.RefreshResult, error) {
	args := m.Called(ctx, tenantID, id, at)
	res, _ := args.Get(0).(*appointment.RefreshResult)
	return res, args.Error(1)
}

func appt() *models.Appointment {
	return &models.Appointment{ID: uuid.New(), TenantID: uuid.New(), RiskTier: models.TierLow}
}

func refreshed(previous, current models.RiskTier) *appointment.RefreshResult {
	return &appointment.RefreshResult{
		Appointment:  &models.Appointment{RiskTier: current},
		PreviousTier: previous,
	}
}

func newRefresher(l RefreshableLister, r Rescorer) *RiskRefresher {
	rr := NewRiskRefresher(l, r, 48*time.Hour, 100)
	rr.now = func() time.Time { return now }
	return rr
}

func TestRun_RefreshesEachCandidate(t *testing.T) {
	a, b, c, d := appt(), appt(), appt(), appt()

	lister := new(mockLister)
	lister.On("ListRefreshable", mock.Anything, now, now.Add(48*time.Hour), 100).
		Return([]*models.Appointment{a, b, c, d}, nil)

	rescorer := new(mockRescorer)
	rescorer.On("RefreshRisk", mock.Anything, a.TenantID, a.ID, now).Return(refreshed(models.TierLow, models.TierLow), nil)
	rescorer.On("RefreshRisk", mock.Anything, b.TenantID, b.ID, now).Return(refreshed(models.TierLow, models.TierHigh), nil)
	rescorer.On("RefreshRisk", mock.Anything, c.TenantID, c.ID, now).Return(nil, appointment.ErrNotRefreshable)
	rescorer.On("RefreshRisk", mock.Anything, d.TenantID, d.ID, now).Return(nil, errors.New("db down"))

	stats, err := newRefresher(lister, rescorer).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunStats{Scanned: 4, Refreshed: 2, TierChanges: 1, Skipped: 1, Failed: 1}, stats)
	lister.AssertExpectations(t)
	rescorer.AssertExpectations(t)
}

func TestRun_SkipsLapsedSubscriptions(t *testing.T) {
	a := appt()

	lister := new(mockLister)
	lister.On("ListRefreshable", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Appointment{a}, nil)

	rescorer := new(mockRescorer)
	rescorer.On("RefreshRisk", mock.Anything, a.TenantID, a.ID, now).
		Return(nil, subscription.ErrSubscriptionExpired)

	stats, err := newRefresher(lister, rescorer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Failed)
}

func TestRun_NothingToRefresh(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListRefreshable", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Appointment{}, nil)
	rescorer := new(mockRescorer)

	stats, err := newRefresher(lister, rescorer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{}, stats)
	rescorer.AssertNotCalled(t, "RefreshRisk", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ListErrorIsReturned(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListRefreshable", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := newRefresher(lister, new(mockRescorer)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing refreshable appointments")
}

func TestScheduler_StartStop(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListRefreshable", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Appointment{}, nil).Maybe()

	s, err := NewScheduler(newRefresher(lister, new(mockRescorer)), time.Hour)
	require.NoError(t, err)
	require.Len(t, s.scheduler.Jobs(), 1)
	assert.Equal(t, "risk-refresh", s.scheduler.Jobs()[0].Name())

	s.Start()
	require.NoError(t, s.Stop())
}
