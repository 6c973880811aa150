package models

import "time"

// ClassSession - занятие вместе с данными класса. Только чтение, владелец - расписание.
type ClassSession struct {
	ID        int64     `db:"id" json:"id"`
	ClassID   int64     `db:"class_id" json:"class_id"`
	CourseID  int64     `db:"course_id" json:"course_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	StudentID *int64    `db:"student_id" json:"student_id,omitempty"`

	// Joined fields
	Capacity          int    `db:"capacity" json:"capacity"`
	OneOnOneStudentID *int64 `db:"one_on_one_student_id" json:"one_on_one_student_id,omitempty"`
}

func (s *ClassSession) IsGroup() bool {
	return s.Capacity > 1
}

// DurationMinutes - полная стоимость занятия в минутах, округленная до ближайшей минуты.
func (s *ClassSession) DurationMinutes() int {
	return int(s.EndAt.Sub(s.StartAt).Round(time.Minute) / time.Minute)
}

type Enrollment struct {
	ClassID   int64     `db:"class_id" json:"class_id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
