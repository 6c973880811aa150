package settlement

import (
	"context"
	"fmt"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/models/config"
	"tuition-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DesiredState - то, что передал вызывающий для одного ученика.
// nil означает "оставить сохраненное значение".
type DesiredState struct {
	StudentID     int64
	Status        *models.AttendanceStatus
	Amount        *int
	Note          *string
	PackageID     *int64
	ExcusedCharge *bool
}

type Summary struct {
	SessionID     int64         `json:"session_id"`
	SettlementID  string        `json:"settlement_id"`
	Unit          string        `json:"unit"`
	ChargedTotal  int           `json:"charged_total"`
	RefundedTotal int           `json:"refunded_total"`
	Students      []ApplyResult `json:"students"`
	Message       string        `json:"message"`
}

// Orchestrator проводит отметки всех учеников занятия в одной транзакции.
type Orchestrator struct {
	repos   repository.Repositories
	tx      repository.TxManager
	applier *Applier
	cfg     config.SettlementConfig
	logger  *zap.Logger
}

// NewOrchestrator: repos используются для чтения до начала транзакции
func NewOrchestrator(
	repos repository.Repositories,
	tx repository.TxManager,
	cfg config.SettlementConfig,
	logger *zap.Logger,
) *Orchestrator {
	logger = logger.Named("settlement")
	return &Orchestrator{
		repos:   repos,
		tx:      tx,
		applier: NewApplier(cfg.ExcusedChargeThreshold, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

func (o *Orchestrator) SettleSession(ctx context.Context, sessionID int64, desired []DesiredState) (*Summary, error) {
	return o.settle(ctx, sessionID, func(*models.ClassSession, []int64) []DesiredState {
		return desired
	})
}

// MarkAllPresent отмечает всех ожидаемых учеников PRESENT с полной стоимостью занятия
func (o *Orchestrator) MarkAllPresent(ctx context.Context, sessionID int64) (*Summary, error) {
	return o.settle(ctx, sessionID, func(session *models.ClassSession, students []int64) []DesiredState {
		present := models.StatusPresent
		full := session.DurationMinutes()
		desired := make([]DesiredState, 0, len(students))
		for _, studentID := range students {
			desired = append(desired, DesiredState{
				StudentID: studentID,
				Status:    &present,
				Amount:    &full,
			})
		}
		return desired
	})
}

func (o *Orchestrator) settle(
	ctx context.Context,
	sessionID int64,
	buildDesired func(session *models.ClassSession, students []int64) []DesiredState,
) (*Summary, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	session, err := o.repos.Schedule.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	if session == nil {
		return nil, &NotFoundError{Entity: "session", ID: sessionID}
	}
	if session.EndAt.Before(session.StartAt) {
		return nil, &ValidationError{Field: "session", Message: fmt.Sprintf("session %d ends before it starts", sessionID)}
	}

	students, err := o.expectedStudents(ctx, session)
	if err != nil {
		return nil, err
	}

	byStudent, err := indexDesired(buildDesired(session, students), students)
	if err != nil {
		return nil, err
	}

	priorExcused := make(map[int64]int, len(students))
	for _, studentID := range students {
		count, err := o.repos.Attendance.CountExcused(ctx, studentID, session.CourseID, session.ID)
		if err != nil {
			return nil, fmt.Errorf("count excused absences of student %d: %w", studentID, err)
		}
		priorExcused[studentID] = count
	}

	summary := &Summary{
		SessionID:    session.ID,
		SettlementID: uuid.NewString(),
		Unit:         models.ModeForGroup(session.IsGroup()).Unit(),
		Students:     make([]ApplyResult, 0, len(students)),
	}
	log := o.logger.With(
		zap.Int64("session_id", session.ID),
		zap.String("settlement_id", summary.SettlementID),
	)

	err = o.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// сначала занятие: без этого два первых проведения не видят отметок друг друга
		found, err := repos.Schedule.LockSession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("lock session %d: %w", session.ID, err)
		}
		if !found {
			return &NotFoundError{Entity: "session", ID: session.ID}
		}

		rows, err := repos.Attendance.ListBySessionForUpdate(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("lock attendance of session %d: %w", session.ID, err)
		}
		existing := make(map[int64]*models.Attendance, len(rows))
		for i := range rows {
			existing[rows[i].StudentID] = &rows[i]
		}

		// отдельный список, чтобы откат транзакции не оставил частичный результат
		results := make([]ApplyResult, 0, len(students))
		for _, studentID := range students {
			in := buildInput(session, studentID, byStudent[studentID], existing[studentID])
			in.SettlementID = summary.SettlementID
			in.PriorExcused = priorExcused[studentID]

			result, err := o.applier.Apply(ctx, repos, in)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		summary.Students = results
		return nil
	})
	if err != nil {
		log.Warn("session settlement rolled back", zap.Error(err))
		return nil, err
	}

	for _, r := range summary.Students {
		if r.Delta > 0 {
			summary.ChargedTotal += r.Delta
		} else {
			summary.RefundedTotal -= r.Delta
		}
	}
	summary.Message = summaryMessage(summary)

	log.Info("session settled",
		zap.Int("students", len(summary.Students)),
		zap.Int("charged_total", summary.ChargedTotal),
		zap.Int("refunded_total", summary.RefundedTotal),
		zap.String("unit", summary.Unit),
	)
	return summary, nil
}

// expectedStudents - для индивидуального класса один ученик:
// ученик занятия, затем ученик класса, затем первый записавшийся.
// Для группы весь список записанных в порядке записи.
func (o *Orchestrator) expectedStudents(ctx context.Context, session *models.ClassSession) ([]int64, error) {
	if !session.IsGroup() {
		if session.StudentID != nil {
			return []int64{*session.StudentID}, nil
		}
		if session.OneOnOneStudentID != nil {
			return []int64{*session.OneOnOneStudentID}, nil
		}
	}

	roster, err := o.repos.Schedule.ListRoster(ctx, session.ClassID)
	if err != nil {
		return nil, fmt.Errorf("load roster of class %d: %w", session.ClassID, err)
	}

	var students []int64
	seen := make(map[int64]bool, len(roster))
	for _, e := range roster {
		if seen[e.StudentID] {
			continue
		}
		seen[e.StudentID] = true
		students = append(students, e.StudentID)
		if !session.IsGroup() {
			break
		}
	}
	return students, nil
}

func indexDesired(desired []DesiredState, students []int64) (map[int64]DesiredState, error) {
	expected := make(map[int64]bool, len(students))
	for _, id := range students {
		expected[id] = true
	}

	byStudent := make(map[int64]DesiredState, len(desired))
	for _, d := range desired {
		if !expected[d.StudentID] {
			return nil, &ValidationError{Field: "student_id", Message: fmt.Sprintf("student %d is not expected in this session", d.StudentID)}
		}
		if _, dup := byStudent[d.StudentID]; dup {
			return nil, &ValidationError{Field: "student_id", Message: fmt.Sprintf("student %d is listed more than once", d.StudentID)}
		}
		if d.Amount != nil && *d.Amount < 0 {
			return nil, &ValidationError{Field: "amount", Message: fmt.Sprintf("student %d: amount must not be negative", d.StudentID)}
		}
		byStudent[d.StudentID] = d
	}
	return byStudent, nil
}

// buildInput подставляет сохраненные значения вместо отсутствующих полей
func buildInput(session *models.ClassSession, studentID int64, d DesiredState, existing *models.Attendance) ApplyInput {
	in := ApplyInput{
		SessionID: session.ID,
		CourseID:  session.CourseID,
		StudentID: studentID,
		AsOf:      session.StartAt,
		IsGroup:   session.IsGroup(),
		Status:    models.StatusUnmarked,
		Amount:    session.DurationMinutes(),
		PackageID: d.PackageID,
		Existing:  existing,
	}

	if existing != nil {
		in.Status = existing.Status
		in.Note = existing.Note
		in.ExcusedCharge = existing.ExcusedCharge
		if existing.ChargedAmount > 0 && !in.IsGroup {
			in.Amount = existing.ChargedAmount
		}
	}

	if d.Status != nil {
		in.Status = *d.Status
	}
	if d.Amount != nil {
		in.Amount = *d.Amount
	}
	if d.Note != nil {
		in.Note = *d.Note
	}
	if d.ExcusedCharge != nil {
		in.ExcusedCharge = *d.ExcusedCharge
	}
	return in
}

func summaryMessage(s *Summary) string {
	msg := fmt.Sprintf("deducted %d %s", s.ChargedTotal, s.Unit)
	if s.RefundedTotal > 0 {
		msg += fmt.Sprintf(", refunded %d %s", s.RefundedTotal, s.Unit)
	}
	return msg
}
