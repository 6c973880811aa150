package ledger

import (
	"context"
	"fmt"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"github.com/jmoiron/sqlx"
)

type ledgerRepository struct {
	db sqlx.ExtContext
}

func NewLedgerRepository(db sqlx.ExtContext) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, txn *models.PackageTxn) error {
	query := `
		INSERT INTO tuition.package_txns
		(package_id, kind, delta_amount, session_id, student_id, settlement_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(
		ctx,
		query,
		txn.PackageID,
		txn.Kind,
		txn.DeltaAmount,
		txn.SessionID,
		txn.StudentID,
		txn.SettlementID,
		txn.Note,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return repository.MapConstraintError(fmt.Errorf("append %s txn for package %d: %w", txn.Kind, txn.PackageID, err))
	}
	return nil
}

func (r *ledgerRepository) ListByPackage(ctx context.Context, packageID int64) ([]models.PackageTxn, error) {
	query := `
		SELECT id, package_id, kind, delta_amount, session_id, student_id, settlement_id, note, created_at
		FROM tuition.package_txns
		WHERE package_id = $1
		ORDER BY created_at, id
	`
	var txns []models.PackageTxn
	if err := sqlx.SelectContext(ctx, r.db, &txns, query, packageID); err != nil {
		return nil, fmt.Errorf("list txns for package %d: %w", packageID, err)
	}
	return txns, nil
}

func (r *ledgerRepository) SumByPackage(ctx context.Context, packageID int64) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(delta_amount), 0) FROM tuition.package_txns WHERE package_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &sum, query, packageID); err != nil {
		return 0, fmt.Errorf("sum txns for package %d: %w", packageID, err)
	}
	return sum, nil
}
