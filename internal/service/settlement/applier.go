package settlement

import (
	"context"
	"fmt"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"

	"go.uber.org/zap"
)

// ApplyInput - итоговое желаемое состояние одного ученика на занятии.
// Значения по умолчанию уже подставлены оркестратором.
type ApplyInput struct {
	SettlementID string
	SessionID    int64
	CourseID     int64
	StudentID    int64
	AsOf         time.Time
	IsGroup      bool

	Status        models.AttendanceStatus
	Amount        int
	Note          string
	PackageID     *int64
	ExcusedCharge bool

	PriorExcused int
	Existing     *models.Attendance
}

type ApplyResult struct {
	StudentID     int64                   `json:"student_id"`
	Status        models.AttendanceStatus `json:"status"`
	ChargedAmount int                     `json:"charged_amount"`
	Delta         int                     `json:"delta"`
	PackageID     *int64                  `json:"package_id,omitempty"`
	TxnKind       models.TxnKind          `json:"txn_kind,omitempty"`
}

type Applier struct {
	excusedThreshold int
	logger           *zap.Logger
}

func NewApplier(excusedThreshold int, logger *zap.Logger) *Applier {
	if excusedThreshold < 1 {
		excusedThreshold = DefaultExcusedThreshold
	}
	return &Applier{excusedThreshold: excusedThreshold, logger: logger}
}

// Apply проводит отметку одного ученика внутри уже открытой транзакции:
// пакет, одна запись журнала на чистую разницу, upsert посещаемости.
func (a *Applier) Apply(ctx context.Context, repos repository.Repositories, in ApplyInput) (ApplyResult, error) {
	if in.Amount < 0 {
		return ApplyResult{}, &ValidationError{Field: "amount", Message: fmt.Sprintf("student %d: amount must not be negative", in.StudentID)}
	}

	previousCharged := 0
	var previousPackage *int64
	if in.Existing != nil {
		previousCharged = in.Existing.ChargedAmount
		previousPackage = in.Existing.PackageID
	}

	if in.Existing.Charged() && in.PackageID != nil && previousPackage != nil && *in.PackageID != *previousPackage {
		return ApplyResult{}, &ConsistencyError{
			StudentID: in.StudentID,
			PackageID: *in.PackageID,
			Reason:    fmt.Sprintf("attendance is already charged to package %d", *previousPackage),
		}
	}

	d := ComputeDeduction(
		previousCharged,
		in.Status,
		in.Amount,
		in.IsGroup,
		ExcusedEligible(in.PriorExcused, a.excusedThreshold),
		in.ExcusedCharge,
	)

	result := ApplyResult{
		StudentID:     in.StudentID,
		Status:        in.Status,
		ChargedAmount: d.Normalized,
		Delta:         d.Delta,
	}

	chargedPackage := previousPackage
	if d.Delta != 0 {
		packageID, kind, err := a.moveBalance(ctx, repos, in, d.Delta, previousPackage)
		if err != nil {
			return ApplyResult{}, err
		}
		chargedPackage = &packageID
		result.TxnKind = kind
	}

	attendance := &models.Attendance{
		SessionID:     in.SessionID,
		StudentID:     in.StudentID,
		Status:        in.Status,
		ChargedAmount: d.Normalized,
		ExcusedCharge: in.Status == models.StatusExcused && in.ExcusedCharge,
		Note:          in.Note,
	}
	if in.IsGroup {
		attendance.ChargedUnitCount = d.Normalized
	}
	if d.Normalized > 0 {
		attendance.PackageID = chargedPackage
		result.PackageID = chargedPackage
	}

	if err := repos.Attendance.Upsert(ctx, attendance); err != nil {
		return ApplyResult{}, fmt.Errorf("save attendance of student %d: %w", in.StudentID, err)
	}
	return result, nil
}

// moveBalance меняет остаток пакета на delta и пишет ровно одну запись журнала
func (a *Applier) moveBalance(
	ctx context.Context,
	repos repository.Repositories,
	in ApplyInput,
	delta int,
	previousPackage *int64,
) (int64, models.TxnKind, error) {
	packageID, ok, err := ResolvePackageID(in.PackageID, previousPackage, delta, func() (int64, bool, error) {
		pkg, found, err := SelectPackage(ctx, repos.Packages, in.StudentID, in.CourseID, in.AsOf, in.IsGroup)
		if err != nil || !found {
			return 0, false, err
		}
		return pkg.ID, true, nil
	})
	if err != nil {
		return 0, "", err
	}
	if !ok {
		reason := "no active package covers the session date"
		if delta < 0 {
			reason = "refund without a previously charged package"
		}
		return 0, "", &EligibilityError{
			SessionID: in.SessionID,
			StudentID: in.StudentID,
			CourseID:  in.CourseID,
			Mode:      models.ModeForGroup(in.IsGroup),
			Reason:    reason,
		}
	}

	pkg, err := repos.Packages.GetByIDForUpdate(ctx, packageID)
	if err != nil {
		return 0, "", fmt.Errorf("lock package %d: %w", packageID, err)
	}
	if reason := checkPackage(pkg, in); reason != "" {
		return 0, "", &ConsistencyError{StudentID: in.StudentID, PackageID: packageID, Reason: reason}
	}

	kind := models.TxnRollback
	if delta > 0 {
		if pkg.RemainingBalance < delta {
			return 0, "", &BalanceError{
				StudentID: in.StudentID,
				PackageID: pkg.ID,
				Requested: delta,
				Remaining: pkg.RemainingBalance,
				Unit:      pkg.Mode.Unit(),
			}
		}
		kind = models.TxnDeduct
	}

	if err := repos.Packages.UpdateBalance(ctx, pkg.ID, pkg.RemainingBalance-delta); err != nil {
		return 0, "", fmt.Errorf("update balance of package %d: %w", pkg.ID, err)
	}

	sessionID, studentID, settlementID := in.SessionID, in.StudentID, in.SettlementID
	txn := &models.PackageTxn{
		PackageID:    pkg.ID,
		Kind:         kind,
		DeltaAmount:  -delta,
		SessionID:    &sessionID,
		StudentID:    &studentID,
		SettlementID: &settlementID,
		Note:         in.Note,
	}
	if err := repos.Ledger.Append(ctx, txn); err != nil {
		return 0, "", fmt.Errorf("append ledger for package %d: %w", pkg.ID, err)
	}

	a.logger.Debug("balance moved",
		zap.String("settlement_id", in.SettlementID),
		zap.Int64("session_id", in.SessionID),
		zap.Int64("student_id", in.StudentID),
		zap.Int64("package_id", pkg.ID),
		zap.String("kind", string(kind)),
		zap.Int("delta", -delta),
		zap.Int("remaining", pkg.RemainingBalance-delta),
	)
	return pkg.ID, kind, nil
}

// checkPackage возвращает причину, по которой пакет нельзя использовать, или пустую строку
func checkPackage(pkg *models.CoursePackage, in ApplyInput) string {
	switch {
	case pkg == nil:
		return "package does not exist"
	case pkg.StudentID != in.StudentID:
		return fmt.Sprintf("package belongs to student %d", pkg.StudentID)
	case pkg.CourseID != in.CourseID:
		return fmt.Sprintf("package is for course %d, session is for course %d", pkg.CourseID, in.CourseID)
	case pkg.Mode != models.ModeForGroup(in.IsGroup):
		return fmt.Sprintf("package mode %s does not match the session type", pkg.Mode)
	case pkg.Status != models.PackageActive:
		return fmt.Sprintf("package is %s", pkg.Status)
	case !pkg.ValidAt(in.AsOf):
		return "session date is outside the package validity window"
	}
	return ""
}
