package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier доставляет уведомления через Telegram Bot API. Ошибки доставки
// возвращаются вызывающему: слой service их логирует и не даёт им влиять
// на переходы статусов.
type Notifier struct {
	api *tgbotapi.BotAPI
}

// NewNotifier создаёт Notifier поверх подключённого Bot API.
func NewNotifier(api *tgbotapi.BotAPI) *Notifier {
	return &Notifier{api: api}
}

// SendMessage отправляет текстовое сообщение в указанный чат.
func (n *Notifier) SendMessage(chatID int64, text string) error {
	_, err := n.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendPhoto отправляет ранее загруженное фото по его file_id.
func (n *Notifier) SendPhoto(chatID int64, photoRef, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(photoRef))
	photo.Caption = caption
	_, err := n.api.Send(photo)
	return err
}
