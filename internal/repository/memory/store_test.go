package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	tick := 0
	return NewStore().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
}

func createPackage(t *testing.T, s *Store, balance int) int64 {
	t.Helper()
	pkg := &models.CoursePackage{
		StudentID: 1, CourseID: 1, Mode: models.ModeHoursMinutes, Status: models.PackageActive,
		TotalPurchased: balance, RemainingBalance: balance, ValidFrom: base.AddDate(0, -1, 0),
	}
	require.NoError(t, s.Repositories().Packages.Create(context.Background(), pkg))
	return pkg.ID
}

func TestWithinTx_ErrorRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := createPackage(t, s, 100)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		require.NoError(t, repos.Packages.UpdateBalance(ctx, id, 40))
		require.NoError(t, repos.Ledger.Append(ctx, &models.PackageTxn{PackageID: id, Kind: models.TxnDeduct, DeltaAmount: -60}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	pkg, err := s.Repositories().Packages.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, pkg.RemainingBalance)
	txns, err := s.Repositories().Ledger.ListByPackage(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestWithinTx_PanicRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := createPackage(t, s, 100)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			require.NoError(t, repos.Packages.UpdateBalance(ctx, id, 1))
			panic("boom")
		})
	})

	pkg, err := s.Repositories().Packages.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, pkg.RemainingBalance)

	// блокировка снята после паники
	require.NoError(t, s.Repositories().Packages.UpdateBalance(ctx, id, 90))
}

func TestWithinTx_Commit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := createPackage(t, s, 100)

	err := s.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Packages.UpdateBalance(ctx, id, 40)
	})
	require.NoError(t, err)

	pkg, err := s.Repositories().Packages.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 40, pkg.RemainingBalance)
}

func TestWithinTx_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false

	err := newTestStore().WithinTx(ctx, func(context.Context, repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestConstraints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := createPackage(t, s, 100)
	repos := s.Repositories()

	err := repos.Packages.UpdateBalance(ctx, id, -1)
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)

	err = repos.Attendance.Upsert(ctx, &models.Attendance{SessionID: 1, StudentID: 1, Status: models.StatusPresent, ChargedAmount: 60})
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)

	err = repos.Ledger.Append(ctx, &models.PackageTxn{PackageID: 999, Kind: models.TxnDeduct, DeltaAmount: -1})
	assert.Error(t, err)
}

func TestAttendanceUpsertKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	repos := s.Repositories()

	first := &models.Attendance{SessionID: 1, StudentID: 2, Status: models.StatusPresent}
	require.NoError(t, repos.Attendance.Upsert(ctx, first))
	second := &models.Attendance{SessionID: 1, StudentID: 2, Status: models.StatusAbsent, Note: "sick"}
	require.NoError(t, repos.Attendance.Upsert(ctx, second))

	rows, err := repos.Attendance.ListBySession(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusAbsent, rows[0].Status)
	assert.Equal(t, first.CreatedAt, rows[0].CreatedAt)
	assert.True(t, rows[0].UpdatedAt.After(rows[0].CreatedAt))
}

func TestCountExcused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	repos := s.Repositories()

	s.AddSession(models.ClassSession{ID: 1, ClassID: 1, CourseID: 7, StartAt: base, EndAt: base.Add(time.Hour)})
	s.AddSession(models.ClassSession{ID: 2, ClassID: 1, CourseID: 7, StartAt: base, EndAt: base.Add(time.Hour)})
	s.AddSession(models.ClassSession{ID: 3, ClassID: 1, CourseID: 7, StartAt: base, EndAt: base.Add(time.Hour)})
	s.AddSession(models.ClassSession{ID: 4, ClassID: 9, CourseID: 8, StartAt: base, EndAt: base.Add(time.Hour)})

	for _, a := range []models.Attendance{
		{SessionID: 1, StudentID: 5, Status: models.StatusExcused},
		{SessionID: 2, StudentID: 5, Status: models.StatusExcused},
		{SessionID: 3, StudentID: 5, Status: models.StatusAbsent},
		{SessionID: 4, StudentID: 5, Status: models.StatusExcused},
		{SessionID: 1, StudentID: 6, Status: models.StatusExcused},
	} {
		a := a
		require.NoError(t, repos.Attendance.Upsert(ctx, &a))
	}

	count, err := repos.Attendance.CountExcused(ctx, 5, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repos.Attendance.CountExcused(ctx, 5, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "current session is excluded")
}

func TestRosterOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Enroll(3, 30)
	s.Enroll(3, 10)
	s.Enroll(3, 20)

	roster, err := s.Repositories().Schedule.ListRoster(ctx, 3)
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, []int64{30, 10, 20}, []int64{roster[0].StudentID, roster[1].StudentID, roster[2].StudentID})

	session, err := s.Repositories().Schedule.GetSession(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, session)
}
