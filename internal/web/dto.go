package web

import (
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/service"
	"tuition-ledger/internal/service/settlement"
)

type StudentMark struct {
	StudentID     int64   `json:"student_id" validate:"required,gt=0"`
	Status        *string `json:"status"`
	Amount        *int    `json:"amount" validate:"omitempty,gte=0"`
	Note          *string `json:"note" validate:"omitempty,max=500"`
	PackageID     *int64  `json:"package_id" validate:"omitempty,gt=0"`
	ExcusedCharge *bool   `json:"excused_charge"`
}

type SettleRequest struct {
	Students []StudentMark `json:"students" validate:"dive"`
}

// DesiredStates - неизвестный статус становится UNMARKED
func (r SettleRequest) DesiredStates() []settlement.DesiredState {
	out := make([]settlement.DesiredState, 0, len(r.Students))
	for _, s := range r.Students {
		d := settlement.DesiredState{
			StudentID:     s.StudentID,
			Amount:        s.Amount,
			Note:          s.Note,
			PackageID:     s.PackageID,
			ExcusedCharge: s.ExcusedCharge,
		}
		if s.Status != nil {
			status := models.ParseAttendanceStatus(*s.Status)
			d.Status = &status
		}
		out = append(out, d)
	}
	return out
}

type CreatePackageRequest struct {
	StudentID      int64      `json:"student_id" validate:"required,gt=0"`
	CourseID       int64      `json:"course_id" validate:"required,gt=0"`
	Mode           string     `json:"mode" validate:"required,package_mode"`
	TotalPurchased int        `json:"total_purchased" validate:"required,gt=0"`
	ValidFrom      time.Time  `json:"valid_from" validate:"required"`
	ValidTo        *time.Time `json:"valid_to"`
	Note           string     `json:"note" validate:"max=500"`
}

func (r CreatePackageRequest) NewPackage() service.NewPackage {
	return service.NewPackage{
		StudentID:      r.StudentID,
		CourseID:       r.CourseID,
		Mode:           models.PackageMode(r.Mode),
		TotalPurchased: r.TotalPurchased,
		ValidFrom:      r.ValidFrom,
		ValidTo:        r.ValidTo,
		Note:           r.Note,
	}
}

type AdjustRequest struct {
	Amount int    `json:"amount" validate:"required"`
	Note   string `json:"note" validate:"required,max=500"`
}
