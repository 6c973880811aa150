package packages_service

import (
	"context"
	"fmt"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"
	"tuition-ledger/internal/service"
	"tuition-ledger/internal/service/settlement"

	"go.uber.org/zap"
)

type packageService struct {
	repos  repository.Repositories
	tx     repository.TxManager
	logger *zap.Logger
}

func NewPackageService(repos repository.Repositories, tx repository.TxManager, logger *zap.Logger) service.PackageService {
	return &packageService{
		repos:  repos,
		tx:     tx,
		logger: logger.Named("packages"),
	}
}

// CreatePackage регистрирует купленный пакет. Остаток равен купленному,
// журнал пустой, поэтому сверка сходится сразу.
func (s *packageService) CreatePackage(ctx context.Context, p service.NewPackage) (*models.CoursePackage, error) {
	if !p.Mode.Valid() {
		return nil, &settlement.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", p.Mode)}
	}
	if p.TotalPurchased <= 0 {
		return nil, &settlement.ValidationError{Field: "total_purchased", Message: "must be positive"}
	}
	if p.ValidFrom.IsZero() {
		return nil, &settlement.ValidationError{Field: "valid_from", Message: "is required"}
	}
	if p.ValidTo != nil && p.ValidTo.Before(p.ValidFrom) {
		return nil, &settlement.ValidationError{Field: "valid_to", Message: "must not be before valid_from"}
	}

	pkg := &models.CoursePackage{
		StudentID:        p.StudentID,
		CourseID:         p.CourseID,
		Mode:             p.Mode,
		Status:           models.PackageActive,
		TotalPurchased:   p.TotalPurchased,
		RemainingBalance: p.TotalPurchased,
		ValidFrom:        p.ValidFrom,
		ValidTo:          p.ValidTo,
		Note:             p.Note,
	}
	if err := s.repos.Packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}

	s.logger.Info("package created",
		zap.Int64("package_id", pkg.ID),
		zap.Int64("student_id", pkg.StudentID),
		zap.String("mode", string(pkg.Mode)),
		zap.Int("total", pkg.TotalPurchased),
	)
	return pkg, nil
}

func (s *packageService) ListStudentPackages(ctx context.Context, studentID int64) ([]*models.CoursePackage, error) {
	return s.repos.Packages.GetByStudentID(ctx, studentID)
}

func (s *packageService) GetLedger(ctx context.Context, packageID int64) ([]models.PackageTxn, error) {
	if _, err := s.mustGet(ctx, packageID); err != nil {
		return nil, err
	}
	return s.repos.Ledger.ListByPackage(ctx, packageID)
}

// Adjust идет через тот же журнал, что и проведение посещаемости
func (s *packageService) Adjust(ctx context.Context, packageID int64, amount int, note string) (*models.PackageTxn, error) {
	if amount == 0 {
		return nil, &settlement.ValidationError{Field: "amount", Message: "must not be zero"}
	}

	var txn *models.PackageTxn
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pkg, err := repos.Packages.GetByIDForUpdate(ctx, packageID)
		if err != nil {
			return fmt.Errorf("lock package %d: %w", packageID, err)
		}
		if pkg == nil {
			return &settlement.NotFoundError{Entity: "package", ID: packageID}
		}

		remaining := pkg.RemainingBalance + amount
		if remaining < 0 {
			return &settlement.BalanceError{
				StudentID: pkg.StudentID,
				PackageID: pkg.ID,
				Requested: -amount,
				Remaining: pkg.RemainingBalance,
				Unit:      pkg.Mode.Unit(),
			}
		}
		if err := repos.Packages.UpdateBalance(ctx, pkg.ID, remaining); err != nil {
			return err
		}

		studentID := pkg.StudentID
		txn = &models.PackageTxn{
			PackageID:   pkg.ID,
			Kind:        models.TxnAdjust,
			DeltaAmount: amount,
			StudentID:   &studentID,
			Note:        note,
		}
		return repos.Ledger.Append(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("package adjusted",
		zap.Int64("package_id", packageID),
		zap.Int("delta", amount),
		zap.String("note", note),
	)
	return txn, nil
}

// Reconcile сверяет остаток с журналом: купленное + сумма журнала == остаток
func (s *packageService) Reconcile(ctx context.Context, packageID int64) (*models.Reconciliation, error) {
	pkg, err := s.mustGet(ctx, packageID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repos.Ledger.SumByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	rec := &models.Reconciliation{
		PackageID:        pkg.ID,
		TotalPurchased:   pkg.TotalPurchased,
		RemainingBalance: pkg.RemainingBalance,
		LedgerSum:        sum,
		Consistent:       pkg.TotalPurchased+sum == pkg.RemainingBalance,
	}
	if !rec.Consistent {
		s.logger.Error("package ledger does not reconcile",
			zap.Int64("package_id", pkg.ID),
			zap.Int("total", pkg.TotalPurchased),
			zap.Int("remaining", pkg.RemainingBalance),
			zap.Int("ledger_sum", sum),
		)
	}
	return rec, nil
}

func (s *packageService) mustGet(ctx context.Context, packageID int64) (*models.CoursePackage, error) {
	pkg, err := s.repos.Packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &settlement.NotFoundError{Entity: "package", ID: packageID}
	}
	return pkg, nil
}
