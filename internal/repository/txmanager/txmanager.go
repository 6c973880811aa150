package txmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tuition-ledger/internal/repository"
	"tuition-ledger/internal/repository/attendance"
	"tuition-ledger/internal/repository/coursepackage"
	"tuition-ledger/internal/repository/ledger"
	"tuition-ledger/internal/repository/schedule"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type txManager struct {
	db     *sqlx.DB
	opts   *sql.TxOptions
	logger *zap.Logger
}

// NewTxManager - транзакции Postgres в READ COMMITTED. Проведение сначала
// блокирует строку занятия, затем отметки и пакеты через SELECT ... FOR UPDATE.
func NewTxManager(db *sqlx.DB, logger *zap.Logger) repository.TxManager {
	return &txManager{
		db:     db,
		opts:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		logger: logger,
	}
}

// NewRepositories собирает репозитории поверх *sqlx.DB или *sqlx.Tx
func NewRepositories(db sqlx.ExtContext) repository.Repositories {
	return repository.Repositories{
		Packages:   coursepackage.NewPackageRepository(db),
		Ledger:     ledger.NewLedgerRepository(db),
		Attendance: attendance.NewAttendanceRepository(db),
		Schedule:   schedule.NewScheduleRepository(db),
	}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			m.logger.Error("transaction panic, rolling back", zap.Any("panic", r))
			_ = tx.Rollback()
			panic(r)
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
