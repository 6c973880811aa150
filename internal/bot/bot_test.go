package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/models/config"
	"tuition-ledger/internal/repository/memory"
	"tuition-ledger/internal/service"
	packages_service "tuition-ledger/internal/service/packages"
	"tuition-ledger/internal/service/settlement"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID = 501
	chat    = int64(9001)
)

var sessionStart = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	bot      *Bot
	sender   *fakeSender
	packages service.PackageService
	pkg      *models.CoursePackage
}

func newFixture(t *testing.T, balance int) *fixture {
	t.Helper()
	store := memory.NewStore()
	studentID := int64(10)
	store.AddSession(models.ClassSession{
		ID: 1, ClassID: 1, CourseID: 100,
		StartAt: sessionStart, EndAt: sessionStart.Add(60 * time.Minute),
		StudentID: &studentID, Capacity: 1,
	})

	logger := zap.NewNop()
	orch := settlement.NewOrchestrator(store.Repositories(), store,
		config.SettlementConfig{ExcusedChargeThreshold: 4, Timeout: time.Second}, logger)
	packages := packages_service.NewPackageService(store.Repositories(), store, logger)

	pkg, err := packages.CreatePackage(context.Background(), service.NewPackage{
		StudentID: 10, CourseID: 100, Mode: models.ModeHoursMinutes,
		TotalPurchased: balance, ValidFrom: sessionStart.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	sender := &fakeSender{}
	b := newBot(sender, config.BotConfig{AdminIDs: []int64{adminID}}, orch, packages, logger)
	return &fixture{bot: b, sender: sender, packages: packages, pkg: pkg}
}

func message(from int, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, UserName: "admin"},
		Chat: &tgbotapi.Chat{ID: chat},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return msg
}

func (f *fixture) say(t *testing.T, text string) string {
	t.Helper()
	f.bot.handleMessage(context.Background(), message(adminID, text))
	return f.sender.last(t).Text
}

func (f *fixture) remaining(t *testing.T) int {
	t.Helper()
	rec, err := f.packages.Reconcile(context.Background(), f.pkg.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	return rec.RemainingBalance
}

func TestNonAdminRejected(t *testing.T) {
	f := newFixture(t, 600)

	f.bot.handleMessage(context.Background(), message(777, "/mark 1 10 present"))

	assert.Contains(t, f.sender.last(t).Text, "⛔")
	assert.Equal(t, 600, f.remaining(t))
}

func TestHelp(t *testing.T) {
	f := newFixture(t, 600)
	assert.Contains(t, f.say(t, "/help"), "/present")
	assert.Contains(t, f.say(t, "просто текст"), "/help")
}

func TestMarkCommand(t *testing.T) {
	f := newFixture(t, 600)

	reply := f.say(t, "/mark 1 10 present 45")
	assert.Contains(t, reply, "deducted 45 minutes")
	assert.Equal(t, 555, f.remaining(t))

	reply = f.say(t, "/mark 1 10 absent")
	assert.Contains(t, reply, "refunded 45 minutes")
	assert.Equal(t, 600, f.remaining(t))
}

func TestMarkCommand_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 30)

	reply := f.say(t, "/mark 1 10 present")

	assert.Contains(t, reply, "Недостаточно средств")
	assert.Contains(t, reply, "нужно 60 minutes, осталось 30")
	assert.Equal(t, 30, f.remaining(t))
}

func TestPresentNeedsConfirmation(t *testing.T) {
	f := newFixture(t, 600)

	reply := f.say(t, "/present 1")
	assert.Contains(t, reply, "#1")
	assert.IsType(t, tgbotapi.ReplyKeyboardMarkup{}, f.sender.last(t).ReplyMarkup)
	assert.Equal(t, 600, f.remaining(t), "nothing charged before confirmation")

	reply = f.say(t, buttonConfirm)
	assert.Contains(t, reply, "deducted 60 minutes")
	assert.Equal(t, 540, f.remaining(t))
	_, pending := f.bot.takePendingMarkAll(chat)
	assert.False(t, pending)
}

func TestPresentCancelled(t *testing.T) {
	f := newFixture(t, 600)

	f.say(t, "/present 1")
	reply := f.say(t, buttonCancel)

	assert.Equal(t, "Отменено", reply)
	assert.Equal(t, 600, f.remaining(t))
}

func TestPackagesAndReconcile(t *testing.T) {
	f := newFixture(t, 600)

	reply := f.say(t, "/packages 10")
	assert.Contains(t, reply, "Остаток: 600 из 600 minutes")

	assert.Contains(t, f.say(t, "/packages 11"), "нет пакетов")
	assert.Contains(t, f.say(t, "/reconcile "+itoa(f.pkg.ID)), "✅ Сходится")
	assert.Contains(t, f.say(t, "/reconcile 404"), "Не найдено")
}

func TestParseMarkArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, d settlement.DesiredState)
	}{
		{
			name: "status only",
			args: []string{"1", "10", "late"},
			check: func(t *testing.T, d settlement.DesiredState) {
				assert.Equal(t, models.StatusLate, *d.Status)
				assert.Nil(t, d.Amount)
				assert.Nil(t, d.ExcusedCharge)
			},
		},
		{
			name: "excused with charge",
			args: []string{"1", "10", "excused", "30", "charge"},
			check: func(t *testing.T, d settlement.DesiredState) {
				assert.Equal(t, models.StatusExcused, *d.Status)
				assert.Equal(t, 30, *d.Amount)
				assert.True(t, *d.ExcusedCharge)
			},
		},
		{
			name: "unknown status is unmarked",
			args: []string{"1", "10", "maybe"},
			check: func(t *testing.T, d settlement.DesiredState) {
				assert.Equal(t, models.StatusUnmarked, *d.Status)
			},
		},
		{name: "too few", args: []string{"1", "10"}, wantErr: true},
		{name: "bad session", args: []string{"x", "10", "present"}, wantErr: true},
		{name: "negative amount", args: []string{"1", "10", "present", "-5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionID, d, err := parseMarkArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), sessionID)
			assert.Equal(t, int64(10), d.StudentID)
			tt.check(t, d)
		})
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestPresentConfirmedTwiceChargesOnce(t *testing.T) {
	f := newFixture(t, 600)
	f.say(t, "/present 1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.bot.handleMessage(context.Background(), message(adminID, buttonConfirm))
		}()
	}
	wg.Wait()

	assert.Equal(t, 540, f.remaining(t))
	ledger, err := f.packages.GetLedger(context.Background(), f.pkg.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestTakePendingMarkAll(t *testing.T) {
	f := newFixture(t, 600)

	_, ok := f.bot.takePendingMarkAll(chat)
	assert.False(t, ok)

	f.bot.setSession(chat, &UserSession{State: StateConfirmingMarkAllPresent, SelectedSessionID: 7})
	sessionID, ok := f.bot.takePendingMarkAll(chat)
	require.True(t, ok)
	assert.Equal(t, int64(7), sessionID)

	_, ok = f.bot.takePendingMarkAll(chat)
	assert.False(t, ok, "confirmation is consumed once")
}
