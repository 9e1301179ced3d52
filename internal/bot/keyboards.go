package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/swordsar/digistore-bot/internal/config"
	"github.com/swordsar/digistore-bot/internal/model"
)

func (b *Bot) mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⭐️ Купить звезды", "buy_stars")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👑 Купить премиум", "buy_premium")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💱 Обмен валют", "exchange")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Информация", "info")),
	}
	if b.cfg.SupportUser != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🆘 Тех поддержка", "https://t.me/"+b.cfg.SupportUser),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func backKeyboard(target string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", target)),
	)
}

func backToMainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Главное меню", "main_menu")),
	)
}

func (b *Bot) premiumKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, period := range config.PremiumPeriods {
		tier, ok := b.cfg.PremiumTiers[period]
		if !ok {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tier.Name, "premium_"+period),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main_menu")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) paymentMethodKeyboard(orderID int64, backTarget string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if b.svc.CryptoEnabled() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💎 CryptoBot", fmt.Sprintf("crypto_pay_%d", orderID)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Перевод на карту", fmt.Sprintf("card_pay_%d", orderID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", backTarget)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmPaymentKeyboard(orderID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Я оплатил", fmt.Sprintf("confirm_paid_%d", orderID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Главное меню", "main_menu")),
	)
}

func cryptoInvoiceKeyboard(orderID int64, payURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💎 Оплатить в CryptoBot", payURL)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Проверить оплату", fmt.Sprintf("check_crypto_%d", orderID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Главное меню", "main_menu")),
	)
}

func adminMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📦 Активные заказы", "admin_active_orders")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", "admin_stats")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 В меню", "main_menu")),
	)
}

func manageOrderKeyboard(order *model.Order) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	switch order.Status {
	case model.OrderStatusWaitingConfirmation:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить оплату", fmt.Sprintf("admin_confirm_payment_%d", order.ID))),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить заказ", fmt.Sprintf("admin_reject_order_%d", order.ID))),
		)
	case model.OrderStatusWaitingCrypto:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💎 Проверить оплату", fmt.Sprintf("check_crypto_%d", order.ID))),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отменить заказ", fmt.Sprintf("admin_reject_order_%d", order.ID))),
		)
	case model.OrderStatusConfirmed:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📦 Я передал товар", fmt.Sprintf("admin_delivered_%d", order.ID))),
		)
	default:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("admin_confirm_payment_%d", order.ID))),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", fmt.Sprintf("admin_reject_order_%d", order.ID))),
		)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", fmt.Sprintf("manage_order_%d", order.ID)),
		tgbotapi.NewInlineKeyboardButtonData("📦 К заказам", "admin_active_orders"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func adminFinalKeyboard(confirmText, confirmData string, orderID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(confirmText, confirmData)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Отмена", fmt.Sprintf("manage_order_%d", orderID))),
	)
}

func (b *Bot) infoKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if b.cfg.ReputationChannel != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📈 Репутация", b.cfg.ReputationChannel)))
	}
	if b.cfg.NewsChannel != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📰 Новости", b.cfg.NewsChannel)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main_menu")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
