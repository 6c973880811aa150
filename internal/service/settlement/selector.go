package settlement

import (
	"context"
	"fmt"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/repository"
)

// SelectPackage находит пакет для списания: тот же ученик и курс, ACTIVE,
// действует на asOf, режим совпадает с типом занятия. Берется самый старый.
// Если подходящего нет, возвращает nil, false, nil.
func SelectPackage(
	ctx context.Context,
	packages repository.PackageRepository,
	studentID, courseID int64,
	asOf time.Time,
	wantGroup bool,
) (*models.CoursePackage, bool, error) {
	candidates, err := packages.ListEligible(ctx, studentID, courseID, models.ModeForGroup(wantGroup), asOf)
	if err != nil {
		return nil, false, fmt.Errorf("select package for student %d: %w", studentID, err)
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	return &candidates[0], true, nil
}

// PackageLookup - последний шаг цепочки ResolvePackageID
type PackageLookup func() (int64, bool, error)

// ResolvePackageID выбирает пакет по порядку: явно указанный, уже списанный
// на этой отметке, затем поиск. Поиск только для списания (delta > 0):
// возврат всегда идет на пакет, с которого списывали.
func ResolvePackageID(override, previous *int64, delta int, lookup PackageLookup) (int64, bool, error) {
	if override != nil {
		return *override, true, nil
	}
	if previous != nil {
		return *previous, true, nil
	}
	if delta <= 0 || lookup == nil {
		return 0, false, nil
	}
	return lookup()
}
