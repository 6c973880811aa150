package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

const (
	buttonConfirm = "✅ Да, списать"
	buttonCancel  = "❌ Отмена"
)

func createConfirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonConfirm),
			tgbotapi.NewKeyboardButton(buttonCancel),
		),
	)
	keyboard.OneTimeKeyboard = true
	return keyboard
}

func removeKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(true)
}
