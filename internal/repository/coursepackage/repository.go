package coursepackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"github.com/jmoiron/sqlx"
)

const selectColumns = `
	id, student_id, course_id, mode, status, total_purchased, remaining_balance,
	valid_from, valid_to, note, created_at, updated_at`

type packageRepository struct {
	db sqlx.ExtContext
}

// NewPackageRepository принимает *sqlx.DB или *sqlx.Tx
func NewPackageRepository(db sqlx.ExtContext) repository.PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) Create(ctx context.Context, pkg *models.CoursePackage) error {
	query := `
		INSERT INTO tuition.course_packages
		(student_id, course_id, mode, status, total_purchased, remaining_balance, valid_from, valid_to, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(
		ctx,
		query,
		pkg.StudentID,
		pkg.CourseID,
		pkg.Mode,
		pkg.Status,
		pkg.TotalPurchased,
		pkg.RemainingBalance,
		pkg.ValidFrom,
		pkg.ValidTo,
		pkg.Note,
	).Scan(&pkg.ID, &pkg.CreatedAt, &pkg.UpdatedAt)
}

func (r *packageRepository) GetByID(ctx context.Context, id int64) (*models.CoursePackage, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM tuition.course_packages WHERE id = $1`, id)
}

func (r *packageRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.CoursePackage, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM tuition.course_packages WHERE id = $1 FOR UPDATE`, id)
}

func (r *packageRepository) get(ctx context.Context, query string, id int64) (*models.CoursePackage, error) {
	var pkg models.CoursePackage
	if err := sqlx.GetContext(ctx, r.db, &pkg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get package %d: %w", id, err)
	}
	return &pkg, nil
}

func (r *packageRepository) ListEligible(ctx context.Context, studentID, courseID int64, mode models.PackageMode, asOf time.Time) ([]models.CoursePackage, error) {
	query := `SELECT ` + selectColumns + `
		FROM tuition.course_packages
		WHERE student_id = $1
		AND course_id = $2
		AND mode = $3
		AND status = $4
		AND valid_from <= $5
		AND (valid_to IS NULL OR valid_to >= $5)
		ORDER BY created_at, id`

	var packages []models.CoursePackage
	if err := sqlx.SelectContext(ctx, r.db, &packages, query, studentID, courseID, mode, models.PackageActive, asOf); err != nil {
		return nil, fmt.Errorf("list eligible packages: %w", err)
	}
	return packages, nil
}

func (r *packageRepository) GetByStudentID(ctx context.Context, studentID int64) ([]*models.CoursePackage, error) {
	query := `SELECT ` + selectColumns + `
		FROM tuition.course_packages
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC`

	var packages []*models.CoursePackage
	if err := sqlx.SelectContext(ctx, r.db, &packages, query, studentID); err != nil {
		return nil, fmt.Errorf("list student packages: %w", err)
	}
	return packages, nil
}

func (r *packageRepository) UpdateBalance(ctx context.Context, id int64, remaining int) error {
	query := `
		UPDATE tuition.course_packages
		SET remaining_balance = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, remaining, id)
	if err != nil {
		return repository.MapConstraintError(fmt.Errorf("update package %d balance: %w", id, err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("package %d not found", id)
	}
	return nil
}
