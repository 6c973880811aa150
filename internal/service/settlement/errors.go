package settlement

import (
	"fmt"

	"tuition-ledger/internal/models"
)

const (
	CodeEligibility         = "ELIGIBILITY"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeConsistency         = "CONSISTENCY"
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
)

// CodedError - доменная ошибка со стабильным кодом для API и бота
type CodedError interface {
	error
	Code() string
}

// EligibilityError - не нашлось пакета, с которого можно списать
type EligibilityError struct {
	SessionID int64
	StudentID int64
	CourseID  int64
	Mode      models.PackageMode
	Reason    string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("student %d has no eligible %s package for course %d (session %d): %s",
		e.StudentID, e.Mode, e.CourseID, e.SessionID, e.Reason)
}

func (e *EligibilityError) Code() string { return CodeEligibility }

// BalanceError - остатка пакета не хватает на списание
type BalanceError struct {
	StudentID int64
	PackageID int64
	Requested int
	Remaining int
	Unit      string
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("package %d of student %d: requested %d %s, remaining %d",
		e.PackageID, e.StudentID, e.Requested, e.Unit, e.Remaining)
}

func (e *BalanceError) Code() string { return CodeInsufficientBalance }

// ConsistencyError - пакет не прошел повторную проверку в момент списания
type ConsistencyError struct {
	StudentID int64
	PackageID int64
	Reason    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("package %d cannot be used for student %d: %s", e.PackageID, e.StudentID, e.Reason)
}

func (e *ConsistencyError) Code() string { return CodeConsistency }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string { return CodeValidation }

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }
