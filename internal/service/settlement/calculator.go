package settlement

import "tuition-ledger/internal/models"

// DefaultExcusedThreshold - с какого по счету уважительного пропуска его можно списать
const DefaultExcusedThreshold = 4

// Deduction - результат расчета для одного ученика.
// Delta > 0 означает списание, Delta < 0 возврат ранее списанного.
type Deduction struct {
	Normalized int
	Chargeable bool
	Delta      int
}

// ExcusedEligible - текущий пропуск учитывается в счетчике
func ExcusedEligible(priorExcused, threshold int) bool {
	return priorExcused+1 >= threshold
}

// ComputeDeduction считает, сколько должно быть списано за занятие и разницу с уже списанным.
func ComputeDeduction(
	previousCharged int,
	status models.AttendanceStatus,
	desiredAmount int,
	isGroup bool,
	excusedEligible bool,
	excusedChargeRequested bool,
) Deduction {
	chargeable := false
	switch status {
	case models.StatusPresent, models.StatusLate:
		chargeable = true
	case models.StatusExcused:
		chargeable = excusedChargeRequested && excusedEligible
	}

	normalized := 0
	if chargeable {
		if isGroup {
			normalized = 1
		} else {
			normalized = desiredAmount
		}
	}

	return Deduction{
		Normalized: normalized,
		Chargeable: chargeable,
		Delta:      normalized - previousCharged,
	}
}
