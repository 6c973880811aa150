package database

import (
	"context"
	_ "embed"
	"fmt"

	"tuition-ledger/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// legacyPackage - пакет, у которого режим еще не перенесен из текстовой метки
type legacyPackage struct {
	ID   int64  `db:"id"`
	Note string `db:"note"`
}

// Migrate создает схему (идемпотентно) и переносит режим старых пакетов
// из метки в note в колонку mode.
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backfill: %w", err)
	}
	defer tx.Rollback()

	var legacy []legacyPackage
	if err := tx.SelectContext(ctx, &legacy,
		`SELECT id, note FROM tuition.course_packages WHERE mode IS NULL FOR UPDATE`); err != nil {
		return fmt.Errorf("select legacy packages: %w", err)
	}

	for _, p := range legacy {
		mode := models.ModeFromLegacyNote(p.Note)
		if _, err := tx.ExecContext(ctx,
			`UPDATE tuition.course_packages SET mode = $1 WHERE id = $2`, mode, p.ID); err != nil {
			return fmt.Errorf("backfill mode of package %d: %w", p.ID, err)
		}
	}

	// купленное для старых пакетов восстанавливается из остатка и журнала
	if _, err := tx.ExecContext(ctx, `
		UPDATE tuition.course_packages p
		SET total_purchased = p.remaining_balance - COALESCE(
			(SELECT SUM(t.delta_amount) FROM tuition.package_txns t WHERE t.package_id = p.id), 0)
		WHERE p.total_purchased = 0`); err != nil {
		return fmt.Errorf("backfill total purchased: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`ALTER TABLE tuition.course_packages ALTER COLUMN mode SET NOT NULL`); err != nil {
		return fmt.Errorf("enforce package mode: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit backfill: %w", err)
	}

	if len(legacy) > 0 {
		logger.Info("📦 Режим пакетов перенесен из note", zap.Int("packages", len(legacy)))
	}
	return nil
}
