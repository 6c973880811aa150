package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/service/settlement"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
)

const helpText = `📋 Команды:
/present <занятие> - отметить всех присутствующими
/mark <занятие> <ученик> <статус> [минуты] [списать] - отметка одного ученика
/packages <ученик> - пакеты ученика
/reconcile <пакет> - сверка пакета с журналом

Статусы: present, late, absent, excused`

// Обработка сообщения здесь
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	b.logger.Debug("📨 Сообщение",
		zap.String("username", message.From.UserName),
		zap.String("text", message.Text),
	)

	if !b.cfg.IsAdmin(int64(message.From.ID)) {
		b.sendMessage(chatID, "⛔ Отмечать посещаемость могут только администраторы")
		return
	}

	if !message.IsCommand() {
		// ответ на подтверждение забирается один раз, повторное нажатие уже не спишет
		if sessionID, ok := b.takePendingMarkAll(chatID); ok {
			b.handleMarkAllConfirmation(ctx, chatID, sessionID, message.Text)
			return
		}
		b.sendMessage(chatID, "Не понимаю 🤔 Наберите /help")
		return
	}

	// новая команда отменяет незавершенный диалог
	b.resetSession(chatID)
	args := strings.Fields(message.CommandArguments())

	switch message.Command() {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "present":
		b.handlePresentCommand(chatID, args)
	case "mark":
		b.handleMarkCommand(ctx, chatID, args)
	case "packages":
		b.handlePackagesCommand(ctx, chatID, args)
	case "reconcile":
		b.handleReconcileCommand(ctx, chatID, args)
	default:
		b.sendMessage(chatID, "Неизвестная команда. Наберите /help")
	}
}

func (b *Bot) handlePresentCommand(chatID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Использование: /present <занятие>")
		return
	}
	sessionID, err := parseID(args[0])
	if err != nil {
		b.sendMessage(chatID, "❌ Неверный номер занятия")
		return
	}

	b.setSession(chatID, &UserSession{
		State:             StateConfirmingMarkAllPresent,
		SelectedSessionID: sessionID,
	})

	msg := tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Отметить всех учеников занятия #%d присутствующими и списать полную длительность?", sessionID))
	msg.ReplyMarkup = createConfirmKeyboard()
	b.send(msg)
}

func (b *Bot) handleMarkAllConfirmation(ctx context.Context, chatID int64, sessionID int64, text string) {
	if text != buttonConfirm {
		msg := tgbotapi.NewMessage(chatID, "Отменено")
		msg.ReplyMarkup = removeKeyboard()
		b.send(msg)
		return
	}

	summary, err := b.SettlementService.MarkAllPresent(ctx, sessionID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatSummary(summary))
	msg.ReplyMarkup = removeKeyboard()
	b.send(msg)
}

func (b *Bot) handleMarkCommand(ctx context.Context, chatID int64, args []string) {
	sessionID, desired, err := parseMarkArgs(args)
	if err != nil {
		b.sendMessage(chatID, "❌ "+err.Error()+"\nИспользование: /mark <занятие> <ученик> <статус> [минуты] [списать]")
		return
	}

	summary, err := b.SettlementService.SettleSession(ctx, sessionID, []settlement.DesiredState{desired})
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.sendMessage(chatID, formatSummary(summary))
}

func (b *Bot) handlePackagesCommand(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Использование: /packages <ученик>")
		return
	}
	studentID, err := parseID(args[0])
	if err != nil {
		b.sendMessage(chatID, "❌ Неверный номер ученика")
		return
	}

	packages, err := b.PackageService.ListStudentPackages(ctx, studentID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	if len(packages) == 0 {
		b.sendMessage(chatID, "📭 У ученика нет пакетов")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 Пакеты ученика #%d:\n", studentID))
	for _, p := range packages {
		sb.WriteString(fmt.Sprintf("\n#%d курс %d, %s\n", p.ID, p.CourseID, p.Status))
		sb.WriteString(fmt.Sprintf("   Остаток: %d из %d %s\n", p.RemainingBalance, p.TotalPurchased, p.Mode.Unit()))
		sb.WriteString(fmt.Sprintf("   Действует с %s", p.ValidFrom.Format("02.01.2006")))
		if p.ValidTo != nil {
			sb.WriteString(fmt.Sprintf(" по %s", p.ValidTo.Format("02.01.2006")))
		}
		sb.WriteString("\n")
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleReconcileCommand(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Использование: /reconcile <пакет>")
		return
	}
	packageID, err := parseID(args[0])
	if err != nil {
		b.sendMessage(chatID, "❌ Неверный номер пакета")
		return
	}

	rec, err := b.PackageService.Reconcile(ctx, packageID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}

	mark := "✅ Сходится"
	if !rec.Consistent {
		mark = "⚠️ Расхождение"
	}
	b.sendMessage(chatID, fmt.Sprintf("%s\nПакет #%d: куплено %d, журнал %+d, остаток %d",
		mark, rec.PackageID, rec.TotalPurchased, rec.LedgerSum, rec.RemainingBalance))
}

// parseMarkArgs: <занятие> <ученик> <статус> [количество] [charge]
func parseMarkArgs(args []string) (int64, settlement.DesiredState, error) {
	var desired settlement.DesiredState
	if len(args) < 3 || len(args) > 5 {
		return 0, desired, errors.New("неверное число аргументов")
	}

	sessionID, err := parseID(args[0])
	if err != nil {
		return 0, desired, errors.New("неверный номер занятия")
	}
	desired.StudentID, err = parseID(args[1])
	if err != nil {
		return 0, desired, errors.New("неверный номер ученика")
	}

	status := models.ParseAttendanceStatus(args[2])
	desired.Status = &status

	for _, arg := range args[3:] {
		if strings.EqualFold(arg, "charge") || arg == "списать" {
			charge := true
			desired.ExcusedCharge = &charge
			continue
		}
		amount, err := strconv.Atoi(arg)
		if err != nil || amount < 0 {
			return 0, desired, fmt.Errorf("неверное количество %q", arg)
		}
		desired.Amount = &amount
	}
	return sessionID, desired, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatSummary(s *settlement.Summary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Занятие #%d проведено: %s\n", s.SessionID, s.Message))
	for _, r := range s.Students {
		sb.WriteString(fmt.Sprintf("\n👤 #%d %s", r.StudentID, r.Status))
		if r.ChargedAmount > 0 {
			sb.WriteString(fmt.Sprintf(", списано %d %s", r.ChargedAmount, s.Unit))
		}
	}
	return sb.String()
}

func (b *Bot) sendError(chatID int64, err error) {
	var (
		balanceErr     *settlement.BalanceError
		eligibilityErr *settlement.EligibilityError
		notFoundErr    *settlement.NotFoundError
		validationErr  *settlement.ValidationError
		consistencyErr *settlement.ConsistencyError
	)

	var text string
	switch {
	case errors.As(err, &balanceErr):
		text = fmt.Sprintf("❌ Недостаточно средств на пакете #%d у ученика #%d: нужно %d %s, осталось %d",
			balanceErr.PackageID, balanceErr.StudentID, balanceErr.Requested, balanceErr.Unit, balanceErr.Remaining)
	case errors.As(err, &eligibilityErr):
		text = fmt.Sprintf("❌ У ученика #%d нет подходящего пакета на курс %d",
			eligibilityErr.StudentID, eligibilityErr.CourseID)
	case errors.As(err, &notFoundErr):
		text = fmt.Sprintf("❌ Не найдено: %s #%d", notFoundErr.Entity, notFoundErr.ID)
	case errors.As(err, &validationErr):
		text = "❌ Ошибка в данных: " + validationErr.Error()
	case errors.As(err, &consistencyErr):
		text = "❌ Пакет нельзя использовать: " + consistencyErr.Reason
	default:
		b.logger.Error("❌ Ошибка бота", zap.Error(err))
		text = "❌ Внутренняя ошибка, попробуйте позже"
	}
	b.sendMessage(chatID, text)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Ошибка отправки сообщения", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}
