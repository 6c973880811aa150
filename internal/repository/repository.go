package repository

import (
	"context"
	"time"

	"tuition-ledger/internal/models"
)

// Все методы Get* возвращают nil, nil если запись не найдена.

type PackageRepository interface {
	Create(ctx context.Context, pkg *models.CoursePackage) error
	GetByID(ctx context.Context, id int64) (*models.CoursePackage, error)
	// GetByIDForUpdate блокирует строку пакета до конца транзакции
	GetByIDForUpdate(ctx context.Context, id int64) (*models.CoursePackage, error)
	// ListEligible - активные пакеты ученика на курс, действующие на момент asOf, старые первыми
	ListEligible(ctx context.Context, studentID, courseID int64, mode models.PackageMode, asOf time.Time) ([]models.CoursePackage, error)
	GetByStudentID(ctx context.Context, studentID int64) ([]*models.CoursePackage, error)
	UpdateBalance(ctx context.Context, id int64, remaining int) error
}

// LedgerRepository - только добавление, изменения и удаления нет
type LedgerRepository interface {
	Append(ctx context.Context, txn *models.PackageTxn) error
	ListByPackage(ctx context.Context, packageID int64) ([]models.PackageTxn, error)
	SumByPackage(ctx context.Context, packageID int64) (int, error)
}

type AttendanceRepository interface {
	// ListBySessionForUpdate блокирует отметки занятия до конца транзакции
	ListBySessionForUpdate(ctx context.Context, sessionID int64) ([]models.Attendance, error)
	ListBySession(ctx context.Context, sessionID int64) ([]models.Attendance, error)
	Upsert(ctx context.Context, attendance *models.Attendance) error
	// CountExcused - число уважительных пропусков ученика по курсу на других занятиях
	CountExcused(ctx context.Context, studentID, courseID, excludeSessionID int64) (int, error)
}

type ScheduleRepository interface {
	GetSession(ctx context.Context, sessionID int64) (*models.ClassSession, error)
	// LockSession блокирует строку занятия до конца транзакции.
	// Параллельные проведения одного занятия выполняются по очереди,
	// даже когда отметок еще нет. false если занятия нет.
	LockSession(ctx context.Context, sessionID int64) (bool, error)
	// ListRoster - записанные в класс ученики в порядке записи
	ListRoster(ctx context.Context, classID int64) ([]models.Enrollment, error)
}

// Repositories - набор репозиториев, привязанных к одному соединению или транзакции
type Repositories struct {
	Packages   PackageRepository
	Ledger     LedgerRepository
	Attendance AttendanceRepository
	Schedule   ScheduleRepository
}

// TxManager выполняет fn в одной транзакции.
// Ошибка или паника внутри fn откатывает все изменения.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
