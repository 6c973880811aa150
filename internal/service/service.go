package service

import (
	"context"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/service/settlement"
)

// SettlementService - проведение посещаемости по пакетам, реализуется settlement.Orchestrator
type SettlementService interface {
	SettleSession(ctx context.Context, sessionID int64, desired []settlement.DesiredState) (*settlement.Summary, error)
	MarkAllPresent(ctx context.Context, sessionID int64) (*settlement.Summary, error)
}

// NewPackage - данные купленного пакета
type NewPackage struct {
	StudentID      int64
	CourseID       int64
	Mode           models.PackageMode
	TotalPurchased int
	ValidFrom      time.Time
	ValidTo        *time.Time
	Note           string
}

type PackageService interface {
	CreatePackage(ctx context.Context, p NewPackage) (*models.CoursePackage, error)
	ListStudentPackages(ctx context.Context, studentID int64) ([]*models.CoursePackage, error)
	GetLedger(ctx context.Context, packageID int64) ([]models.PackageTxn, error)
	// Adjust - ручная корректировка, пишет ADJUST в журнал
	Adjust(ctx context.Context, packageID int64, amount int, note string) (*models.PackageTxn, error)
	Reconcile(ctx context.Context, packageID int64) (*models.Reconciliation, error)
}
