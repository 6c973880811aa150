// Package memory - хранилище в памяти для локального запуска (STORAGE_DRIVER=memory) и тестов.
// Транзакции выполняются строго по одной, при ошибке состояние откатывается к снимку.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"
)

type attendanceKey struct {
	sessionID int64
	studentID int64
}

type state struct {
	packages    map[int64]models.CoursePackage
	txns        []models.PackageTxn
	attendance  map[attendanceKey]models.Attendance
	sessions    map[int64]models.ClassSession
	enrollments map[int64][]models.Enrollment

	nextPackageID int64
	nextTxnID     int64
}

func (s *state) clone() *state {
	c := &state{
		packages:      make(map[int64]models.CoursePackage, len(s.packages)),
		txns:          append([]models.PackageTxn(nil), s.txns...),
		attendance:    make(map[attendanceKey]models.Attendance, len(s.attendance)),
		sessions:      make(map[int64]models.ClassSession, len(s.sessions)),
		enrollments:   make(map[int64][]models.Enrollment, len(s.enrollments)),
		nextPackageID: s.nextPackageID,
		nextTxnID:     s.nextTxnID,
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.attendance {
		c.attendance[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = append([]models.Enrollment(nil), v...)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	data  *state
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{
		data: &state{
			packages:    make(map[int64]models.CoursePackage),
			attendance:  make(map[attendanceKey]models.Attendance),
			sessions:    make(map[int64]models.ClassSession),
			enrollments: make(map[int64][]models.Enrollment),
		},
		clock: time.Now,
	}
}

// WithClock подменяет источник времени для created_at/updated_at
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Repositories - репозитории вне транзакции, каждый вызов атомарен сам по себе.
// Не вызывайте их внутри WithinTx: используйте переданные в fn.
func (s *Store) Repositories() repository.Repositories {
	return s.repositories(false)
}

func (s *Store) repositories(inTx bool) repository.Repositories {
	return repository.Repositories{
		Packages:   &packageRepository{store: s, inTx: inTx},
		Ledger:     &ledgerRepository{store: s, inTx: inTx},
		Attendance: &attendanceRepository{store: s, inTx: inTx},
		Schedule:   &scheduleRepository{store: s, inTx: inTx},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
	}()

	if err = fn(ctx, s.repositories(true)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	committed = true
	return nil
}

// run выполняет операцию под блокировкой, если она не внутри транзакции
func (s *Store) run(inTx bool, op func(d *state) error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return op(s.data)
}

// AddSession регистрирует занятие вместе с данными класса (capacity, one-on-one ученик).
func (s *Store) AddSession(session models.ClassSession) {
	_ = s.run(false, func(d *state) error {
		d.sessions[session.ID] = session
		return nil
	})
}

// Enroll записывает ученика в класс
func (s *Store) Enroll(classID, studentID int64) {
	_ = s.run(false, func(d *state) error {
		d.enrollments[classID] = append(d.enrollments[classID], models.Enrollment{
			ClassID:   classID,
			StudentID: studentID,
			CreatedAt: s.clock(),
		})
		return nil
	})
}

// ---- packages ----

type packageRepository struct {
	store *Store
	inTx  bool
}

func (r *packageRepository) Create(_ context.Context, pkg *models.CoursePackage) error {
	return r.store.run(r.inTx, func(d *state) error {
		d.nextPackageID++
		now := r.store.clock()
		pkg.ID = d.nextPackageID
		pkg.CreatedAt = now
		pkg.UpdatedAt = now
		d.packages[pkg.ID] = *pkg
		return nil
	})
}

func (r *packageRepository) GetByID(_ context.Context, id int64) (*models.CoursePackage, error) {
	var out *models.CoursePackage
	err := r.store.run(r.inTx, func(d *state) error {
		if pkg, ok := d.packages[id]; ok {
			out = &pkg
		}
		return nil
	})
	return out, err
}

func (r *packageRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.CoursePackage, error) {
	return r.GetByID(ctx, id)
}

func (r *packageRepository) ListEligible(_ context.Context, studentID, courseID int64, mode models.PackageMode, asOf time.Time) ([]models.CoursePackage, error) {
	var out []models.CoursePackage
	err := r.store.run(r.inTx, func(d *state) error {
		for _, pkg := range d.packages {
			if pkg.StudentID == studentID && pkg.CourseID == courseID && pkg.Mode == mode &&
				pkg.Status == models.PackageActive && pkg.ValidAt(asOf) {
				out = append(out, pkg)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *packageRepository) GetByStudentID(_ context.Context, studentID int64) ([]*models.CoursePackage, error) {
	var out []*models.CoursePackage
	err := r.store.run(r.inTx, func(d *state) error {
		for _, pkg := range d.packages {
			if pkg.StudentID == studentID {
				pkg := pkg
				out = append(out, &pkg)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *packageRepository) UpdateBalance(_ context.Context, id int64, remaining int) error {
	return r.store.run(r.inTx, func(d *state) error {
		pkg, ok := d.packages[id]
		if !ok {
			return errPackageNotFound(id)
		}
		// то же ограничение, что CHECK (remaining_balance >= 0) в схеме
		if remaining < 0 {
			return repository.ErrConstraintViolation
		}
		pkg.RemainingBalance = remaining
		pkg.UpdatedAt = r.store.clock()
		d.packages[id] = pkg
		return nil
	})
}

// ---- ledger ----

type ledgerRepository struct {
	store *Store
	inTx  bool
}

func (r *ledgerRepository) Append(_ context.Context, txn *models.PackageTxn) error {
	return r.store.run(r.inTx, func(d *state) error {
		if _, ok := d.packages[txn.PackageID]; !ok {
			return errPackageNotFound(txn.PackageID)
		}
		d.nextTxnID++
		txn.ID = d.nextTxnID
		txn.CreatedAt = r.store.clock()
		d.txns = append(d.txns, *txn)
		return nil
	})
}

func (r *ledgerRepository) ListByPackage(_ context.Context, packageID int64) ([]models.PackageTxn, error) {
	var out []models.PackageTxn
	err := r.store.run(r.inTx, func(d *state) error {
		for _, txn := range d.txns {
			if txn.PackageID == packageID {
				out = append(out, txn)
			}
		}
		return nil
	})
	return out, err
}

func (r *ledgerRepository) SumByPackage(ctx context.Context, packageID int64) (int, error) {
	txns, err := r.ListByPackage(ctx, packageID)
	if err != nil {
		return 0, err
	}
	sum := 0
	for _, txn := range txns {
		sum += txn.DeltaAmount
	}
	return sum, nil
}

// ---- attendance ----

type attendanceRepository struct {
	store *Store
	inTx  bool
}

func (r *attendanceRepository) ListBySession(_ context.Context, sessionID int64) ([]models.Attendance, error) {
	var out []models.Attendance
	err := r.store.run(r.inTx, func(d *state) error {
		for key, a := range d.attendance {
			if key.sessionID == sessionID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, err
}

func (r *attendanceRepository) ListBySessionForUpdate(ctx context.Context, sessionID int64) ([]models.Attendance, error) {
	return r.ListBySession(ctx, sessionID)
}

func (r *attendanceRepository) Upsert(_ context.Context, attendance *models.Attendance) error {
	return r.store.run(r.inTx, func(d *state) error {
		if attendance.ChargedAmount > 0 && attendance.PackageID == nil {
			return repository.ErrConstraintViolation
		}
		key := attendanceKey{sessionID: attendance.SessionID, studentID: attendance.StudentID}
		now := r.store.clock()
		if existing, ok := d.attendance[key]; ok {
			attendance.CreatedAt = existing.CreatedAt
		} else {
			attendance.CreatedAt = now
		}
		attendance.UpdatedAt = now
		d.attendance[key] = *attendance
		return nil
	})
}

func (r *attendanceRepository) CountExcused(_ context.Context, studentID, courseID, excludeSessionID int64) (int, error) {
	count := 0
	err := r.store.run(r.inTx, func(d *state) error {
		for key, a := range d.attendance {
			if key.studentID != studentID || key.sessionID == excludeSessionID || a.Status != models.StatusExcused {
				continue
			}
			if session, ok := d.sessions[key.sessionID]; ok && session.CourseID == courseID {
				count++
			}
		}
		return nil
	})
	return count, err
}

// ---- schedule ----

type scheduleRepository struct {
	store *Store
	inTx  bool
}

func (r *scheduleRepository) GetSession(_ context.Context, sessionID int64) (*models.ClassSession, error) {
	var out *models.ClassSession
	err := r.store.run(r.inTx, func(d *state) error {
		if session, ok := d.sessions[sessionID]; ok {
			out = &session
		}
		return nil
	})
	return out, err
}

// LockSession: транзакции хранилища и так идут под одним мьютексом
func (r *scheduleRepository) LockSession(_ context.Context, sessionID int64) (bool, error) {
	var found bool
	err := r.store.run(r.inTx, func(d *state) error {
		_, found = d.sessions[sessionID]
		return nil
	})
	return found, err
}

func (r *scheduleRepository) ListRoster(_ context.Context, classID int64) ([]models.Enrollment, error) {
	var out []models.Enrollment
	err := r.store.run(r.inTx, func(d *state) error {
		out = append(out, d.enrollments[classID]...)
		return nil
	})
	return out, err
}

func errPackageNotFound(id int64) error {
	return fmt.Errorf("package %d not found", id)
}
