package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"github.com/jmoiron/sqlx"
)

// scheduleRepository читает данные расписания, которыми владеет другая подсистема
type scheduleRepository struct {
	db sqlx.ExtContext
}

func NewScheduleRepository(db sqlx.ExtContext) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) GetSession(ctx context.Context, sessionID int64) (*models.ClassSession, error) {
	query := `
		SELECT
			s.id, s.class_id, c.course_id, s.start_at, s.end_at, s.student_id,
			c.capacity, c.one_on_one_student_id
		FROM tuition.class_sessions s
		JOIN tuition.classes c ON s.class_id = c.id
		WHERE s.id = $1
	`
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.db, &session, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	return &session, nil
}

func (r *scheduleRepository) LockSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `
		SELECT id
		FROM tuition.class_sessions
		WHERE id = $1
		FOR UPDATE
	`
	var id int64
	if err := sqlx.GetContext(ctx, r.db, &id, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock session %d: %w", sessionID, err)
	}
	return true, nil
}

func (r *scheduleRepository) ListRoster(ctx context.Context, classID int64) ([]models.Enrollment, error) {
	query := `
		SELECT class_id, student_id, created_at
		FROM tuition.enrollments
		WHERE class_id = $1
		ORDER BY created_at, student_id
	`
	var roster []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.db, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list roster for class %d: %w", classID, err)
	}
	return roster, nil
}
