package attendance

import (
	"context"
	"fmt"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"github.com/jmoiron/sqlx"
)

const selectColumns = `
	session_id, student_id, status, charged_amount, charged_unit_count,
	package_id, excused_charge, note, created_at, updated_at`

type attendanceRepository struct {
	db sqlx.ExtContext
}

func NewAttendanceRepository(db sqlx.ExtContext) repository.AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Attendance, error) {
	return r.list(ctx, `SELECT `+selectColumns+`
		FROM tuition.attendance
		WHERE session_id = $1
		ORDER BY student_id`, sessionID)
}

func (r *attendanceRepository) ListBySessionForUpdate(ctx context.Context, sessionID int64) ([]models.Attendance, error) {
	return r.list(ctx, `SELECT `+selectColumns+`
		FROM tuition.attendance
		WHERE session_id = $1
		ORDER BY student_id
		FOR UPDATE`, sessionID)
}

func (r *attendanceRepository) list(ctx context.Context, query string, sessionID int64) ([]models.Attendance, error) {
	var attendances []models.Attendance
	if err := sqlx.SelectContext(ctx, r.db, &attendances, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance for session %d: %w", sessionID, err)
	}
	return attendances, nil
}

// Upsert - одна строка на (session_id, student_id), повторное сохранение перезаписывает ее
func (r *attendanceRepository) Upsert(ctx context.Context, attendance *models.Attendance) error {
	query := `
		INSERT INTO tuition.attendance
		(session_id, student_id, status, charged_amount, charged_unit_count, package_id, excused_charge, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			charged_amount = EXCLUDED.charged_amount,
			charged_unit_count = EXCLUDED.charged_unit_count,
			package_id = EXCLUDED.package_id,
			excused_charge = EXCLUDED.excused_charge,
			note = EXCLUDED.note,
			updated_at = CURRENT_TIMESTAMP
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(
		ctx,
		query,
		attendance.SessionID,
		attendance.StudentID,
		attendance.Status,
		attendance.ChargedAmount,
		attendance.ChargedUnitCount,
		attendance.PackageID,
		attendance.ExcusedCharge,
		attendance.Note,
	).Scan(&attendance.CreatedAt, &attendance.UpdatedAt)
	if err != nil {
		return repository.MapConstraintError(fmt.Errorf("upsert attendance session=%d student=%d: %w",
			attendance.SessionID, attendance.StudentID, err))
	}
	return nil
}

func (r *attendanceRepository) CountExcused(ctx context.Context, studentID, courseID, excludeSessionID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tuition.attendance a
		JOIN tuition.class_sessions s ON a.session_id = s.id
		JOIN tuition.classes c ON s.class_id = c.id
		WHERE a.student_id = $1
		AND c.course_id = $2
		AND a.session_id <> $3
		AND a.status = $4
	`
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, studentID, courseID, excludeSessionID, models.StatusExcused); err != nil {
		return 0, fmt.Errorf("count excused for student %d: %w", studentID, err)
	}
	return count, nil
}
