package models

import (
	"strings"
	"time"
)

type AttendanceStatus string

const (
	StatusUnmarked AttendanceStatus = "UNMARKED"
	StatusPresent  AttendanceStatus = "PRESENT"
	StatusLate     AttendanceStatus = "LATE"
	StatusAbsent   AttendanceStatus = "ABSENT"
	StatusExcused  AttendanceStatus = "EXCUSED"
)

// ParseAttendanceStatus разбирает статус без учета регистра.
// Неизвестное значение превращается в UNMARKED, это не ошибка.
func ParseAttendanceStatus(s string) AttendanceStatus {
	switch st := AttendanceStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return st
	default:
		return StatusUnmarked
	}
}

// Attendance - отметка ученика на занятии, одна на пару (session_id, student_id)
type Attendance struct {
	SessionID        int64            `db:"session_id" json:"session_id"`
	StudentID        int64            `db:"student_id" json:"student_id"`
	Status           AttendanceStatus `db:"status" json:"status"`
	ChargedAmount    int              `db:"charged_amount" json:"charged_amount"`
	ChargedUnitCount int              `db:"charged_unit_count" json:"charged_unit_count"`
	PackageID        *int64           `db:"package_id" json:"package_id,omitempty"`
	ExcusedCharge    bool             `db:"excused_charge" json:"excused_charge"`
	Note             string           `db:"note" json:"note"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

func (a *Attendance) Charged() bool {
	return a != nil && a.ChargedAmount > 0
}
