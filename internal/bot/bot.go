// Package bot содержит Telegram-транспорт магазина: цикл обновлений,
// обработку команд, кнопок и фото.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/swordsar/digistore-bot/internal/config"
	"github.com/swordsar/digistore-bot/internal/model"
	"github.com/swordsar/digistore-bot/internal/service"
	"github.com/swordsar/digistore-bot/internal/session"
	"github.com/swordsar/digistore-bot/internal/validation"
)

// Bot связывает Telegram Bot API с бизнес-логикой магазина.
type Bot struct {
	api      *tgbotapi.BotAPI
	svc      *service.Service
	sessions *session.Manager
	cfg      *config.Config
	logger   *zap.Logger
}

// New создаёт бота поверх подключённого Bot API.
func New(api *tgbotapi.BotAPI, svc *service.Service, sessions *session.Manager, cfg *config.Config, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		svc:      svc,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run запускает цикл получения обновлений и блокируется до отмены контекста.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func fullName(u *tgbotapi.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	if err := b.svc.RegisterUser(ctx, userID, msg.From.UserName, fullName(msg.From)); err != nil {
		b.logger.Error("register user", zap.Int64("user", userID), zap.Error(err))
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.send(msg.Chat.ID, mainMenuText, b.mainMenuKeyboard())
	case "admin":
		if !b.svc.IsAdmin(msg.From.ID) {
			b.send(msg.Chat.ID, "❌ Доступ запрещен", nil)
			return
		}
		b.send(msg.Chat.ID, "🛠️ Админ панель\n\nВыберите действие:", adminMenuKeyboard())
	default:
		b.send(msg.Chat.ID, "Используйте меню", b.mainMenuKeyboard())
	}
}

const mainMenuText = "🪐 Digi Store - Главное меню\n\n" +
	"C помощью нашего магазина вы можете:\n" +
	"• ⭐️ Купить Telegram Stars\n" +
	"• 👑 Купить Telegram Premium\n" +
	"• 💱 Обменять рубли на доллары\n\n" +
	"Выберите действие:"

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	sess, ok := b.sessions.Get(userID)
	if !ok {
		b.send(msg.Chat.ID, "Используйте меню", b.mainMenuKeyboard())
		return
	}

	switch sess.Step {
	case session.StepStarsRecipient:
		recipient, err := validation.NormalizeRecipient(text)
		if err != nil {
			b.send(msg.Chat.ID, "❌ Введите username получателя (можно с @)", nil)
			return
		}
		sess.Recipient = recipient
		sess.Step = session.StepStarsAmount
		b.sessions.Start(userID, sess)
		b.send(msg.Chat.ID,
			fmt.Sprintf("✅ Получатель: @%s\n\nТеперь введите количество звезд (от 50 до 1,000,000):", recipient),
			backKeyboard("buy_stars"))

	case session.StepStarsAmount:
		stars, err := validation.ParseStarsAmount(text)
		switch {
		case errors.Is(err, validation.ErrNotANumber):
			b.send(msg.Chat.ID, "❌ Пожалуйста, введите число", nil)
			return
		case errors.Is(err, validation.ErrOutOfRange):
			b.send(msg.Chat.ID, "❌ Количество звезд должно быть от 50 до 1,000,000", nil)
			return
		}

		order, err := b.svc.CreateStarsOrder(ctx, userID, sess.Recipient, stars)
		if err != nil {
			b.logger.Error("create stars order", zap.Int64("user", userID), zap.Error(err))
			b.send(msg.Chat.ID, "❌ Не удалось создать заказ, попробуйте позже", nil)
			return
		}
		b.sessions.Clear(userID)

		b.send(msg.Chat.ID,
			fmt.Sprintf("✅ %d звезд для @%s\n💰 Сумма: %.2f RUB\n\nВыберите способ оплаты:", stars, order.Recipient, order.AmountRUB),
			b.paymentMethodKeyboard(order.ID, "buy_stars"))

	case session.StepPremiumRecipient:
		recipient, err := validation.NormalizeRecipient(text)
		if err != nil {
			b.send(msg.Chat.ID, "❌ Введите username получателя (можно с @)", nil)
			return
		}

		order, err := b.svc.CreatePremiumOrder(ctx, userID, recipient, sess.Period)
		if err != nil {
			b.logger.Error("create premium order", zap.Int64("user", userID), zap.Error(err))
			b.send(msg.Chat.ID, "❌ Не удалось создать заказ, попробуйте позже", nil)
			return
		}
		b.sessions.Clear(userID)

		tier := b.cfg.PremiumTiers[sess.Period]
		b.send(msg.Chat.ID,
			fmt.Sprintf("✅ %s для @%s\n💰 Сумма: %.2f RUB\n\nВыберите способ оплаты:", tier.Name, recipient, order.AmountRUB),
			b.paymentMethodKeyboard(order.ID, "buy_premium"))

	case session.StepExchangeAmount:
		amount, err := validation.ParseExchangeAmount(text, b.cfg.MinExchangeRUB)
		switch {
		case errors.Is(err, validation.ErrNotANumber):
			b.send(msg.Chat.ID, "❌ Пожалуйста, введите число", nil)
			return
		case errors.Is(err, validation.ErrOutOfRange):
			b.send(msg.Chat.ID, fmt.Sprintf("❌ Минимальная сумма: %.0f RUB", b.cfg.MinExchangeRUB), nil)
			return
		}

		order, err := b.svc.CreateExchangeOrder(ctx, userID, amount)
		if err != nil {
			b.logger.Error("create exchange order", zap.Int64("user", userID), zap.Error(err))
			b.send(msg.Chat.ID, "❌ Не удалось создать заказ, попробуйте позже", nil)
			return
		}
		b.sessions.Clear(userID)

		// Обмен оплачивается только картой.
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Оплатить картой", fmt.Sprintf("card_pay_%d", order.ID))),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "exchange")),
		)
		b.send(msg.Chat.ID,
			fmt.Sprintf("✅ Обмен валют\n📊 Курс: 1 USD = %.0f RUB\n💸 Вы получаете: %.2f USD\n💰 К оплате: %.2f RUB\n\n💳 Оплата только картой!\nПосле оплаты пришлите скриншот перевода.",
				b.cfg.USDRate, order.Details.AmountUSD, order.AmountRUB),
			kb)

	case session.StepPaymentPhoto:
		b.send(msg.Chat.ID, "📸 Пожалуйста, отправьте фото/скриншот оплаты", nil)

	default:
		b.send(msg.Chat.ID, "Используйте меню", b.mainMenuKeyboard())
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	sess, ok := b.sessions.Get(userID)
	if !ok || sess.Step != session.StepPaymentPhoto {
		b.send(msg.Chat.ID, "Пожалуйста, используйте кнопки меню.", nil)
		return
	}

	photoRef := msg.Photo[len(msg.Photo)-1].FileID

	order, err := b.svc.SubmitPaymentPhoto(ctx, userID, sess.OrderID, photoRef)
	if err != nil {
		b.logger.Error("submit payment photo", zap.Int64("user", userID), zap.Int64("order", sess.OrderID), zap.Error(err))
		b.send(msg.Chat.ID, "❌ Заказ не найден", nil)
		return
	}

	b.sessions.Clear(userID)

	var userText string
	if order.Kind == model.OrderKindExchange {
		userText = fmt.Sprintf(
			"✅ Фото оплаты получено!\n💸 Вы получаете: %.2f USD\n💰 Оплачено: %.2f RUB\n\nЗаказ передан админу на проверку.\nПосле проверки USD будут отправлены вам в течение 15 минут - 3 часа.",
			order.Details.AmountUSD, order.AmountRUB)
	} else {
		userText = "✅ Фото оплаты получено! Заказ передан админу на проверку.\nПосле проверки товар будет доставлен в течение 15 минут - 3 часа."
	}

	b.send(msg.Chat.ID, userText, nil)
	b.send(msg.Chat.ID, mainMenuText, b.mainMenuKeyboard())
}

// send отправляет сообщение; kb может быть nil. Ошибки отправки логируются.
func (b *Bot) send(chatID int64, text string, kb any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send message", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// edit заменяет текст и клавиатуру сообщения, по которому пришёл callback.
func (b *Bot) edit(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("edit message", zap.Int64("chat", chatID), zap.Error(err))
	}
}
