package bot

import "time"

type BotState int

const (
	StateDefault BotState = iota
	// ждем подтверждения "отметить всех"
	StateConfirmingMarkAllPresent
)

// сессия без ответа дольше этого сбрасывается
const sessionTTL = 10 * time.Minute

type UserSession struct {
	State             BotState
	SelectedSessionID int64
	UpdatedAt         time.Time
}

func (b *Bot) setSession(chatID int64, session *UserSession) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session.UpdatedAt = time.Now()
	b.userSessions[chatID] = session
}

// takePendingMarkAll проверяет и сбрасывает ожидание подтверждения под одной блокировкой
func (b *Bot) takePendingMarkAll(chatID int64) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, exists := b.userSessions[chatID]
	if !exists || session.State != StateConfirmingMarkAllPresent {
		return 0, false
	}
	delete(b.userSessions, chatID)
	if time.Since(session.UpdatedAt) > sessionTTL {
		return 0, false
	}
	return session.SelectedSessionID, true
}

func (b *Bot) resetSession(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.userSessions, chatID)
}
