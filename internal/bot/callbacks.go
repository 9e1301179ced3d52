package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/swordsar/digistore-bot/internal/cryptopay"
	"github.com/swordsar/digistore-bot/internal/model"
	"github.com/swordsar/digistore-bot/internal/repository"
	"github.com/swordsar/digistore-bot/internal/service"
	"github.com/swordsar/digistore-bot/internal/session"
)

// orderIDFromCallback выделяет идентификатор заказа из callback-данных вида
// "<prefix><id>". Возвращает false, если префикс не совпал или id не число.
func orderIDFromCallback(data, prefix string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, prefix)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := cb.From.ID
	data := cb.Data

	b.answer(cb.ID, "")

	switch data {
	case "main_menu":
		b.sessions.Clear(userID)
		b.edit(chatID, messageID, mainMenuText, b.mainMenuKeyboard())
		return

	case "buy_stars":
		b.sessions.Start(userID, session.Session{Step: session.StepStarsRecipient})
		b.edit(chatID, messageID,
			"⭐️ Покупка Telegram Stars\n\n"+
				fmt.Sprintf("💰 Курс: 1 звезда = %.1f RUB\n\n", b.cfg.StarRate)+
				"Введите username получателя (например: @username):",
			backToMainKeyboard())
		return

	case "buy_premium":
		b.edit(chatID, messageID, "👑 Telegram Premium\n\nВыберите период подписки:", b.premiumKeyboard())
		return

	case "exchange":
		b.sessions.Start(userID, session.Session{Step: session.StepExchangeAmount})
		b.edit(chatID, messageID,
			fmt.Sprintf("💱 Обмен RUB → USD\n\n📊 Курс: 1 USD = %.0f RUB\n💵 Минимальная сумма: %.0f RUB\n\nВведите сумму в рублях:",
				b.cfg.USDRate, b.cfg.MinExchangeRUB),
			backToMainKeyboard())
		return

	case "info":
		b.edit(chatID, messageID,
			"📊 Информация о магазине\n\n"+
				fmt.Sprintf("⭐️ Звезды: 1 звезда = %.1f RUB\n", b.cfg.StarRate)+
				fmt.Sprintf("💱 Обмен: 1 USD = %.0f RUB\n\n", b.cfg.USDRate)+
				"Оплата: перевод на карту или CryptoBot.",
			b.infoKeyboard())
		return

	case "admin_active_orders":
		b.showActiveOrders(ctx, chatID, messageID, userID)
		return

	case "admin_stats":
		b.showAdminStats(ctx, chatID, messageID, userID)
		return
	}

	if period, ok := strings.CutPrefix(data, "premium_"); ok {
		tier, found := b.cfg.PremiumTiers[period]
		if !found {
			b.answer(cb.ID, "❌ Неизвестный период")
			return
		}
		b.sessions.Start(userID, session.Session{Step: session.StepPremiumRecipient, Period: period})
		b.edit(chatID, messageID,
			fmt.Sprintf("👑 %s\n💰 Цена: %.2f RUB\n\nВведите username получателя (например: @username):", tier.Name, tier.PriceRUB),
			backKeyboard("buy_premium"))
		return
	}

	switch {
	case strings.HasPrefix(data, "card_pay_"):
		if id, ok := orderIDFromCallback(data, "card_pay_"); ok {
			b.handleCardPay(ctx, cb, id)
			return
		}
	case strings.HasPrefix(data, "crypto_pay_"):
		if id, ok := orderIDFromCallback(data, "crypto_pay_"); ok {
			b.handleCryptoPay(ctx, cb, id)
			return
		}
	case strings.HasPrefix(data, "check_crypto_"):
		if id, ok := orderIDFromCallback(data, "check_crypto_"); ok {
			b.handleCheckCrypto(ctx, cb, id)
			return
		}
	case strings.HasPrefix(data, "confirm_paid_"):
		if id, ok := orderIDFromCallback(data, "confirm_paid_"); ok {
			b.sessions.Start(userID, session.Session{Step: session.StepPaymentPhoto, OrderID: id})
			b.edit(chatID, messageID,
				fmt.Sprintf("📸 Заказ #%d\n\nОтправьте скриншот перевода одним фото.", id),
				tgbotapi.NewInlineKeyboardMarkup(
					tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Отмена", fmt.Sprintf("cancel_photo_%d", id))),
				))
			return
		}
	case strings.HasPrefix(data, "cancel_photo_"):
		if _, ok := orderIDFromCallback(data, "cancel_photo_"); ok {
			b.sessions.Clear(userID)
			b.edit(chatID, messageID, mainMenuText, b.mainMenuKeyboard())
			return
		}
	case strings.HasPrefix(data, "manage_order_"):
		if id, ok := orderIDFromCallback(data, "manage_order_"); ok {
			b.showManageOrder(ctx, cb, id)
			return
		}
	case strings.HasPrefix(data, "admin_confirm_payment_"):
		if id, ok := orderIDFromCallback(data, "admin_confirm_payment_"); ok {
			b.handleAdminIntent(cb, model.AdminActionConfirm, id)
			return
		}
	case strings.HasPrefix(data, "admin_reject_order_"):
		if id, ok := orderIDFromCallback(data, "admin_reject_order_"); ok {
			b.handleAdminIntent(cb, model.AdminActionReject, id)
			return
		}
	case strings.HasPrefix(data, "admin_delivered_"):
		if id, ok := orderIDFromCallback(data, "admin_delivered_"); ok {
			b.handleAdminIntent(cb, model.AdminActionDelivered, id)
			return
		}
	case strings.HasPrefix(data, "admin_final_confirm_"):
		if id, ok := orderIDFromCallback(data, "admin_final_confirm_"); ok {
			b.handleAdminFinal(ctx, cb, model.AdminActionConfirm, id)
			return
		}
	case strings.HasPrefix(data, "admin_final_reject_"):
		if id, ok := orderIDFromCallback(data, "admin_final_reject_"); ok {
			b.handleAdminFinal(ctx, cb, model.AdminActionReject, id)
			return
		}
	case strings.HasPrefix(data, "admin_final_delivered_"):
		if id, ok := orderIDFromCallback(data, "admin_final_delivered_"); ok {
			b.handleAdminFinal(ctx, cb, model.AdminActionDelivered, id)
			return
		}
	}

	b.logger.Debug("unknown callback", zap.String("data", data))
}

func (b *Bot) handleCardPay(ctx context.Context, cb *tgbotapi.CallbackQuery, orderID int64) {
	order, err := b.svc.ChooseCardPayment(ctx, cb.From.ID, orderID)
	if err != nil {
		b.replyOrderError(cb, orderID, err)
		return
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID,
		fmt.Sprintf("💳 Оплата переводом на карту\n\n🆔 Заказ: #%d\n💰 Сумма: %.2f RUB\n\n"+
			"Номер карты:\n`%s`\n\nПосле перевода нажмите «Я оплатил» и пришлите скриншот.",
			order.ID, order.AmountRUB, b.cfg.CardNumber),
		confirmPaymentKeyboard(order.ID))
}

func (b *Bot) handleCryptoPay(ctx context.Context, cb *tgbotapi.CallbackQuery, orderID int64) {
	order, invoice, err := b.svc.ChooseCryptoPayment(ctx, cb.From.ID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCryptoUnavailable):
			b.answer(cb.ID, "❌ Криптооплата временно недоступна")
		case errors.Is(err, service.ErrInvoiceExists):
			b.answer(cb.ID, "❌ Счет уже выставлен")
		default:
			b.replyOrderError(cb, orderID, err)
		}
		return
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID,
		fmt.Sprintf("💎 Оплата через CryptoBot\n\n🆔 Заказ: #%d\n💰 Сумма: %.2f RUB (%s %s)\n\n"+
			"Оплатите счет по кнопке ниже, затем нажмите «Проверить оплату».",
			order.ID, order.AmountRUB, invoice.Amount, invoice.Asset),
		cryptoInvoiceKeyboard(order.ID, invoice.PayURL))
}

func (b *Bot) handleCheckCrypto(ctx context.Context, cb *tgbotapi.CallbackQuery, orderID int64) {
	result, err := b.svc.CheckCryptoPayment(ctx, cb.From.ID, orderID)
	if err != nil {
		b.replyOrderError(cb, orderID, err)
		return
	}

	switch result.Status {
	case cryptopay.InvoiceStatusPaid:
		b.edit(cb.Message.Chat.ID, cb.Message.MessageID,
			fmt.Sprintf("✅ Оплата подтверждена!\n\n🆔 Заказ: #%d\n💰 Сумма: %.2f RUB\n\nТовар будет отправлен в течение 15 минут - 3 часа!",
				result.Order.ID, result.Order.AmountRUB),
			backToMainKeyboard())
	case cryptopay.InvoiceStatusExpired:
		b.edit(cb.Message.Chat.ID, cb.Message.MessageID,
			fmt.Sprintf("❌ Счет просрочен!\n\nЗаказ #%d отменен. Создайте новый заказ.", result.Order.ID),
			backToMainKeyboard())
	default:
		b.alert(cb.ID, "⏳ Счет пока не оплачен")
	}
}

func (b *Bot) handleAdminIntent(cb *tgbotapi.CallbackQuery, action model.AdminAction, orderID int64) {
	if _, err := b.svc.RequestAdminAction(cb.From.ID, action, orderID); err != nil {
		b.answer(cb.ID, "❌ Доступ запрещен")
		return
	}

	var (
		warning     string
		confirmText string
		confirmData string
	)
	switch action {
	case model.AdminActionConfirm:
		warning = fmt.Sprintf("⚠️ Подтвердить оплату заказа #%d?\n\nПокупатель получит уведомление о подтверждении.", orderID)
		confirmText = "✅ Да, подтвердить"
		confirmData = fmt.Sprintf("admin_final_confirm_%d", orderID)
	case model.AdminActionReject:
		warning = fmt.Sprintf("⚠️ Отклонить заказ #%d?\n\nЗаказ будет отменен, покупатель получит уведомление.", orderID)
		confirmText = "❌ Да, отклонить"
		confirmData = fmt.Sprintf("admin_final_reject_%d", orderID)
	case model.AdminActionDelivered:
		warning = fmt.Sprintf("⚠️ Отметить заказ #%d выполненным?\n\nУбедитесь, что товар передан покупателю.", orderID)
		confirmText = "📦 Да, выполнен"
		confirmData = fmt.Sprintf("admin_final_delivered_%d", orderID)
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, warning, adminFinalKeyboard(confirmText, confirmData, orderID))
}

func (b *Bot) handleAdminFinal(ctx context.Context, cb *tgbotapi.CallbackQuery, action model.AdminAction, orderID int64) {
	order, err := b.svc.FinalizeAdminAction(ctx, cb.From.ID, action, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAdmin):
			b.answer(cb.ID, "❌ Доступ запрещен")
		case errors.Is(err, repository.ErrOrderNotFound):
			b.answer(cb.ID, "❌ Заказ не найден")
		case errors.Is(err, service.ErrInvalidTransition):
			b.alert(cb.ID, "❌ Заказ уже в другом статусе, обновите список")
		default:
			b.logger.Error("finalize admin action", zap.Int64("order", orderID), zap.Error(err))
			b.answer(cb.ID, "❌ Ошибка, попробуйте позже")
		}
		return
	}

	var done string
	switch action {
	case model.AdminActionConfirm:
		done = fmt.Sprintf("✅ Оплата заказа #%d подтверждена.", order.ID)
	case model.AdminActionReject:
		done = fmt.Sprintf("❌ Заказ #%d отклонен.", order.ID)
	case model.AdminActionDelivered:
		done = fmt.Sprintf("🎉 Заказ #%d выполнен.", order.ID)
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID,
		done+"\n\nПокупатель получил уведомление.",
		tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📦 К заказам", "admin_active_orders")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 В меню", "main_menu")),
		))
}

func (b *Bot) showActiveOrders(ctx context.Context, chatID int64, messageID int, userID int64) {
	orders, err := b.svc.ActiveOrders(ctx, userID)
	if err != nil {
		b.logger.Error("list active orders", zap.Error(err))
		return
	}

	if len(orders) == 0 {
		b.edit(chatID, messageID, "📦 Активных заказов нет.", adminMenuKeyboard())
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 Активные заказы (%d)\n\n", len(orders)))

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, order := range orders {
		sb.WriteString(fmt.Sprintf("%s #%d | %s | %.2f RUB\n",
			statusEmoji(order.Status), order.ID, kindLabel(order.Kind), order.AmountRUB))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s Заказ #%d", statusEmoji(order.Status), order.ID),
				fmt.Sprintf("manage_order_%d", order.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main_menu")))

	b.edit(chatID, messageID, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) showAdminStats(ctx context.Context, chatID int64, messageID int, userID int64) {
	orders, err := b.svc.ActiveOrders(ctx, userID)
	if err != nil {
		b.logger.Error("admin stats", zap.Error(err))
		return
	}

	counts := make(map[model.OrderStatus]int)
	var totalRUB float64
	for _, order := range orders {
		counts[order.Status]++
		totalRUB += order.AmountRUB
	}

	text := "📊 Статистика\n\n" +
		fmt.Sprintf("Активных заказов: %d\n", len(orders)) +
		fmt.Sprintf("⏳ Ожидают оплаты: %d\n", counts[model.OrderStatusPending]+counts[model.OrderStatusWaitingPayment]+counts[model.OrderStatusWaitingCrypto]) +
		fmt.Sprintf("📸 На проверке: %d\n", counts[model.OrderStatusWaitingConfirmation]) +
		fmt.Sprintf("✅ Подтверждены: %d\n", counts[model.OrderStatusConfirmed]) +
		fmt.Sprintf("\n💰 Сумма активных: %.2f RUB", totalRUB)

	b.edit(chatID, messageID, text, adminMenuKeyboard())
}

func (b *Bot) showManageOrder(ctx context.Context, cb *tgbotapi.CallbackQuery, orderID int64) {
	order, err := b.svc.OrderForAdmin(ctx, cb.From.ID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAdmin):
			b.answer(cb.ID, "❌ Доступ запрещен")
		case errors.Is(err, repository.ErrOrderNotFound):
			b.answer(cb.ID, "❌ Заказ не найден")
		default:
			b.logger.Error("load order", zap.Int64("order", orderID), zap.Error(err))
		}
		return
	}

	if order.Details.PaymentPhoto != "" {
		photo := tgbotapi.NewPhoto(cb.Message.Chat.ID, tgbotapi.FileID(order.Details.PaymentPhoto))
		photo.Caption = fmt.Sprintf("📸 Фото оплаты | Заказ #%d", order.ID)
		if _, err := b.api.Send(photo); err != nil {
			b.logger.Warn("send payment photo", zap.Int64("order", order.ID), zap.Error(err))
		}
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, adminOrderCard(order), manageOrderKeyboard(order))
}

func adminOrderCard(order *model.Order) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🆔 Заказ: #%d\n", order.ID))
	sb.WriteString(fmt.Sprintf("%s Статус: %s\n", statusEmoji(order.Status), statusLabel(order.Status)))
	sb.WriteString(fmt.Sprintf("📦 Тип: %s\n", kindLabel(order.Kind)))
	sb.WriteString(fmt.Sprintf("👤 Пользователь: %d\n", order.UserID))
	sb.WriteString(fmt.Sprintf("💰 Сумма: %.2f RUB\n", order.AmountRUB))

	switch order.Kind {
	case model.OrderKindStars:
		sb.WriteString(fmt.Sprintf("⭐️ Количество: %d\n👤 Получатель: @%s\n", order.Details.Stars, order.Recipient))
	case model.OrderKindPremium:
		sb.WriteString(fmt.Sprintf("👑 Период: %s\n👤 Получатель: @%s\n", order.Details.Period, order.Recipient))
	case model.OrderKindExchange:
		sb.WriteString(fmt.Sprintf("💸 К выдаче: %.2f USD (курс %.0f)\n", order.Details.AmountUSD, order.Details.ExchangeRate))
	}

	if order.InvoiceID != nil {
		sb.WriteString(fmt.Sprintf("💎 Счет CryptoBot: %s\n", *order.InvoiceID))
	}
	sb.WriteString(fmt.Sprintf("🕐 Создан: %s", order.CreatedAt.Format("02.01.2006 15:04")))
	return sb.String()
}

func statusEmoji(status model.OrderStatus) string {
	switch status {
	case model.OrderStatusPending:
		return "🆕"
	case model.OrderStatusWaitingPayment:
		return "⏳"
	case model.OrderStatusWaitingConfirmation:
		return "📸"
	case model.OrderStatusWaitingCrypto:
		return "💎"
	case model.OrderStatusConfirmed:
		return "✅"
	case model.OrderStatusCompleted:
		return "🎉"
	case model.OrderStatusCancelled:
		return "❌"
	default:
		return "❓"
	}
}

func statusLabel(status model.OrderStatus) string {
	switch status {
	case model.OrderStatusPending:
		return "новый"
	case model.OrderStatusWaitingPayment:
		return "ожидает оплату"
	case model.OrderStatusWaitingConfirmation:
		return "ожидает проверку оплаты"
	case model.OrderStatusWaitingCrypto:
		return "ожидает криптооплату"
	case model.OrderStatusConfirmed:
		return "оплата подтверждена"
	case model.OrderStatusCompleted:
		return "выполнен"
	case model.OrderStatusCancelled:
		return "отменен"
	default:
		return string(status)
	}
}

func kindLabel(kind model.OrderKind) string {
	switch kind {
	case model.OrderKindStars:
		return "Telegram Stars"
	case model.OrderKindPremium:
		return "Telegram Premium"
	case model.OrderKindExchange:
		return "Обмен RUB → USD"
	default:
		return string(kind)
	}
}

// replyOrderError переводит типовые ошибки бизнес-логики в короткие ответы
// на callback.
func (b *Bot) replyOrderError(cb *tgbotapi.CallbackQuery, orderID int64, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		b.answer(cb.ID, "❌ Заказ не найден")
	case errors.Is(err, service.ErrNotOrderOwner):
		b.answer(cb.ID, "❌ Это не ваш заказ")
	case errors.Is(err, service.ErrInvalidTransition):
		b.alert(cb.ID, "❌ Заказ уже в другом статусе")
	default:
		b.logger.Error("order operation", zap.Int64("order", orderID), zap.Error(err))
		b.answer(cb.ID, "❌ Ошибка, попробуйте позже")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("answer callback", zap.Error(err))
	}
}

func (b *Bot) alert(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
		b.logger.Warn("answer callback", zap.Error(err))
	}
}
