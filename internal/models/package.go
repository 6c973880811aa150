package models

import (
	"strings"
	"time"
)

// PackageMode - единица измерения баланса пакета
type PackageMode string

const (
	// баланс в минутах, списывается длительность занятия
	ModeHoursMinutes PackageMode = "HOURS_MINUTES"
	// баланс в занятиях, групповое занятие всегда стоит 1
	ModeGroupCount PackageMode = "GROUP_COUNT"
)

// LegacyGroupTag - метка групповых пакетов в старом текстовом поле note.
// Используется только при миграции, см. ModeFromLegacyNote.
const LegacyGroupTag = "[GROUP_COUNT]"

func (m PackageMode) Valid() bool {
	return m == ModeHoursMinutes || m == ModeGroupCount
}

// Unit возвращает название единицы для сообщений пользователю.
func (m PackageMode) Unit() string {
	if m == ModeGroupCount {
		return "units"
	}
	return "minutes"
}

// ModeForGroup выбирает режим пакета по типу занятия.
func ModeForGroup(isGroup bool) PackageMode {
	if isGroup {
		return ModeGroupCount
	}
	return ModeHoursMinutes
}

// ModeFromLegacyNote восстанавливает режим из старой текстовой метки.
func ModeFromLegacyNote(note string) PackageMode {
	if strings.Contains(note, LegacyGroupTag) {
		return ModeGroupCount
	}
	return ModeHoursMinutes
}

type PackageStatus string

const (
	PackageActive  PackageStatus = "ACTIVE"
	PackagePaused  PackageStatus = "PAUSED"
	PackageExpired PackageStatus = "EXPIRED"
)

func (s PackageStatus) Valid() bool {
	switch s {
	case PackageActive, PackagePaused, PackageExpired:
		return true
	}
	return false
}

// CoursePackage - предоплаченный пакет ученика на курс
type CoursePackage struct {
	ID               int64         `db:"id" json:"id"`
	StudentID        int64         `db:"student_id" json:"student_id"`
	CourseID         int64         `db:"course_id" json:"course_id"`
	Mode             PackageMode   `db:"mode" json:"mode"`
	Status           PackageStatus `db:"status" json:"status"`
	TotalPurchased   int           `db:"total_purchased" json:"total_purchased"`
	RemainingBalance int           `db:"remaining_balance" json:"remaining_balance"`
	ValidFrom        time.Time     `db:"valid_from" json:"valid_from"`
	ValidTo          *time.Time    `db:"valid_to" json:"valid_to,omitempty"`
	Note             string        `db:"note" json:"note"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// ValidAt проверяет, что момент попадает в окно действия пакета.
func (p *CoursePackage) ValidAt(at time.Time) bool {
	if p.ValidFrom.After(at) {
		return false
	}
	return p.ValidTo == nil || !p.ValidTo.Before(at)
}

func (p *CoursePackage) IsGroup() bool {
	return p.Mode == ModeGroupCount
}
