// Package service реализует бизнес-логику магазина: жизненный цикл заказа
// и связанные с переходами статусов уведомления.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/swordsar/digistore-bot/internal/cryptopay"
	"github.com/swordsar/digistore-bot/internal/model"
)

// Ошибки уровня бизнес-логики.
var (
	// ErrNotAdmin возвращается при попытке выполнить админское действие без прав.
	ErrNotAdmin = errors.New("not an admin")
	// ErrNotOrderOwner возвращается, если заказ принадлежит другому покупателю.
	ErrNotOrderOwner = errors.New("order belongs to another user")
	// ErrInvalidTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCryptoUnavailable возвращается, если платёжный шлюз не сконфигурирован.
	ErrCryptoUnavailable = errors.New("crypto gateway is not configured")
	// ErrUnknownPeriod возвращается при неизвестном периоде подписки.
	ErrUnknownPeriod = errors.New("unknown premium period")
	// ErrInvoiceExists возвращается при попытке выставить второй счёт на заказ.
	ErrInvoiceExists = errors.New("invoice already exists for order")
	// ErrNoInvoice возвращается при проверке оплаты заказа без счёта.
	ErrNoInvoice = errors.New("order has no invoice")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	UpsertUser(ctx context.Context, id int64, username, fullName string) error
	CreateOrder(ctx context.Context, userID int64, kind model.OrderKind, recipient string, details model.OrderDetails, amountRUB float64, method model.PaymentMethod) (int64, error)
	SetStatus(ctx context.Context, orderID int64, status model.OrderStatus) (bool, error)
	SetInvoiceID(ctx context.Context, orderID int64, invoiceID string) error
	AttachPaymentPhoto(ctx context.Context, orderID int64, photoRef string) (bool, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	ListActiveOrders(ctx context.Context) ([]model.Order, error)
}

// Gateway описывает контракт платёжного шлюза.
type Gateway interface {
	CreateInvoice(ctx context.Context, amountRUB float64, description string) (*cryptopay.Invoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (*cryptopay.InvoiceStatus, error)
}

// Notifier доставляет сообщения пользователям. Ошибки доставки не влияют на
// переходы статусов: сервис их только логирует.
type Notifier interface {
	SendMessage(chatID int64, text string) error
	SendPhoto(chatID int64, photoRef, caption string) error
}

// PremiumTier описывает один период подписки в каталоге.
type PremiumTier struct {
	Name     string
	PriceRUB float64
}

// Catalog содержит прайс магазина.
type Catalog struct {
	StarRate       float64
	USDRate        float64
	MinExchangeRUB float64
	PremiumTiers   map[string]PremiumTier
}

// Service владеет машиной состояний заказа.
type Service struct {
	repo     Repository
	gateway  Gateway
	notifier Notifier
	catalog  Catalog
	admins   map[int64]struct{}
	logger   *zap.Logger

	// per-order взаимное исключение: два события по одному заказу не
	// выполняют переход одновременно.
	locksMu    sync.Mutex
	orderLocks map[int64]*sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]model.PendingAdminAction
}

// NewService создаёт сервис. gateway может быть nil — тогда криптооплата недоступна.
func NewService(repo Repository, gateway Gateway, notifier Notifier, catalog Catalog, adminIDs []int64, logger *zap.Logger) *Service {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		gateway:    gateway,
		notifier:   notifier,
		catalog:    catalog,
		admins:     admins,
		logger:     logger,
		orderLocks: make(map[int64]*sync.Mutex),
		pending:    make(map[int64]model.PendingAdminAction),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// CryptoEnabled сообщает, доступна ли оплата через криптошлюз.
func (s *Service) CryptoEnabled() bool {
	return s.gateway != nil
}

func (s *Service) lockOrder(orderID int64) func() {
	s.locksMu.Lock()
	l, ok := s.orderLocks[orderID]
	if !ok {
		l = &sync.Mutex{}
		s.orderLocks[orderID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// RegisterUser идемпотентно сохраняет пользователя при первом обращении.
func (s *Service) RegisterUser(ctx context.Context, userID int64, username, fullName string) error {
	return s.repo.UpsertUser(ctx, userID, username, fullName)
}

// CreateStarsOrder создаёт заказ на покупку звёзд. Количество валидируется
// вызывающей стороной; здесь вычисляется цена по курсу каталога.
func (s *Service) CreateStarsOrder(ctx context.Context, userID int64, recipient string, stars int) (*model.Order, error) {
	amount := round2(float64(stars) * s.catalog.StarRate)
	details := model.OrderDetails{Stars: stars}

	id, err := s.repo.CreateOrder(ctx, userID, model.OrderKindStars, recipient, details, amount, model.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	return &model.Order{
		ID:        id,
		UserID:    userID,
		Kind:      model.OrderKindStars,
		Recipient: recipient,
		Details:   details,
		AmountRUB: amount,
		Method:    model.PaymentMethodCard,
		Status:    model.OrderStatusPending,
	}, nil
}

// CreatePremiumOrder создаёт заказ на подписку Premium выбранного периода.
func (s *Service) CreatePremiumOrder(ctx context.Context, userID int64, recipient, period string) (*model.Order, error) {
	tier, ok := s.catalog.PremiumTiers[period]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeriod, period)
	}

	details := model.OrderDetails{Period: period}

	id, err := s.repo.CreateOrder(ctx, userID, model.OrderKindPremium, recipient, details, tier.PriceRUB, model.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	return &model.Order{
		ID:        id,
		UserID:    userID,
		Kind:      model.OrderKindPremium,
		Recipient: recipient,
		Details:   details,
		AmountRUB: tier.PriceRUB,
		Method:    model.PaymentMethodCard,
		Status:    model.OrderStatusPending,
	}, nil
}

// CreateExchangeOrder создаёт заказ на обмен рублей на доллары.
func (s *Service) CreateExchangeOrder(ctx context.Context, userID int64, amountRUB float64) (*model.Order, error) {
	amountUSD := round2(amountRUB / s.catalog.USDRate)
	details := model.OrderDetails{
		AmountRUB:    amountRUB,
		AmountUSD:    amountUSD,
		ExchangeRate: s.catalog.USDRate,
	}

	id, err := s.repo.CreateOrder(ctx, userID, model.OrderKindExchange, "", details, amountRUB, model.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	return &model.Order{
		ID:        id,
		UserID:    userID,
		Kind:      model.OrderKindExchange,
		Details:   details,
		AmountRUB: amountRUB,
		Method:    model.PaymentMethodCard,
		Status:    model.OrderStatusPending,
	}, nil
}

func (s *Service) getOwnedOrder(ctx context.Context, actorID, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actorID && !s.IsAdmin(actorID) {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

// ChooseCardPayment переводит заказ к оплате переводом на карту.
// Повторный показ реквизитов по заказу, уже ожидающему оплату, допустим.
func (s *Service) ChooseCardPayment(ctx context.Context, actorID, orderID int64) (*model.Order, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.getOwnedOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusWaitingPayment:
		return order, nil
	case model.OrderStatusPending:
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStatusWaitingPayment)
	}

	if _, err := s.repo.SetStatus(ctx, orderID, model.OrderStatusWaitingPayment); err != nil {
		return nil, err
	}
	order.Status = model.OrderStatusWaitingPayment
	return order, nil
}

// ChooseCryptoPayment выставляет счёт в шлюзе и переводит заказ в waiting_crypto.
// При ошибке шлюза заказ остаётся в pending. Повторное выставление счёта на
// заказ, у которого он уже есть, отклоняется.
func (s *Service) ChooseCryptoPayment(ctx context.Context, actorID, orderID int64) (*model.Order, *cryptopay.Invoice, error) {
	if s.gateway == nil {
		return nil, nil, ErrCryptoUnavailable
	}

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.getOwnedOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, nil, err
	}

	if order.Status != model.OrderStatusPending {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStatusWaitingCrypto)
	}
	if order.InvoiceID != nil {
		return nil, nil, ErrInvoiceExists
	}

	invoice, err := s.gateway.CreateInvoice(ctx, order.AmountRUB, fmt.Sprintf("Заказ #%d | %s", order.ID, order.Kind))
	if err != nil {
		return nil, nil, fmt.Errorf("create invoice: %w", err)
	}

	if err := s.repo.SetInvoiceID(ctx, orderID, invoice.ID); err != nil {
		return nil, nil, err
	}
	if _, err := s.repo.SetStatus(ctx, orderID, model.OrderStatusWaitingCrypto); err != nil {
		return nil, nil, err
	}

	order.InvoiceID = &invoice.ID
	order.Status = model.OrderStatusWaitingCrypto
	return order, invoice, nil
}

// SubmitPaymentPhoto прикрепляет фото оплаты к заказу, переводит его в
// waiting_confirmation и рассылает фото администраторам. Сбой доставки одному
// администратору не мешает уведомить остальных и не откатывает переход.
func (s *Service) SubmitPaymentPhoto(ctx context.Context, userID, orderID int64, photoRef string) (*model.Order, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != model.OrderStatusWaitingPayment {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStatusWaitingConfirmation)
	}

	if _, err := s.repo.AttachPaymentPhoto(ctx, orderID, photoRef); err != nil {
		return nil, err
	}
	if _, err := s.repo.SetStatus(ctx, orderID, model.OrderStatusWaitingConfirmation); err != nil {
		return nil, err
	}

	order.Details.PaymentPhoto = photoRef
	order.Status = model.OrderStatusWaitingConfirmation

	photoCaption := fmt.Sprintf("📸 Новое фото оплаты | Заказ #%d", order.ID)
	summary := s.adminOrderSummary(order)
	for adminID := range s.admins {
		if err := s.notifier.SendPhoto(adminID, photoRef, photoCaption); err != nil {
			s.logger.Warn("admin photo notification failed", zap.Int64("admin", adminID), zap.Error(err))
			continue
		}
		if err := s.notifier.SendMessage(adminID, summary); err != nil {
			s.logger.Warn("admin notification failed", zap.Int64("admin", adminID), zap.Error(err))
		}
	}

	return order, nil
}

// CheckResult описывает исход проверки криптооплаты.
type CheckResult struct {
	Status string
	Order  *model.Order
}

// CheckCryptoPayment опрашивает шлюз по счёту заказа. Работает только для
// заказов в waiting_crypto: повторная проверка уже подтверждённого или
// отменённого заказа отклоняется без обращения к шлюзу.
func (s *Service) CheckCryptoPayment(ctx context.Context, actorID, orderID int64) (*CheckResult, error) {
	if s.gateway == nil {
		return nil, ErrCryptoUnavailable
	}

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.getOwnedOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != model.OrderStatusWaitingCrypto {
		return nil, fmt.Errorf("%w: check payment in %s", ErrInvalidTransition, order.Status)
	}
	if order.InvoiceID == nil {
		return nil, ErrNoInvoice
	}

	status, err := s.gateway.GetInvoiceStatus(ctx, *order.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice status: %w", err)
	}

	switch status.Status {
	case cryptopay.InvoiceStatusPaid:
		if _, err := s.repo.SetStatus(ctx, orderID, model.OrderStatusConfirmed); err != nil {
			return nil, err
		}
		order.Status = model.OrderStatusConfirmed

		adminText := fmt.Sprintf(
			"💎 CryptoBot оплата ПОДТВЕРЖДЕНА\n\n🆔 Заказ: #%d\n💰 Сумма: %.2f RUB\n📦 Тип: %s\n\n✅ Статус: ОПЛАЧЕНО\nПерейдите в админ панель для выполнения заказа",
			order.ID, order.AmountRUB, order.Kind,
		)
		s.notifyAdmins(adminText)
		s.notifyUser(order.UserID, fmt.Sprintf(
			"✅ Оплата подтверждена!\n\n🆔 Ваш заказ: #%d\n💰 Сумма: %.2f RUB\n\nТовар будет отправлен в течение 15 минут - 3 часа!",
			order.ID, order.AmountRUB,
		))

	case cryptopay.InvoiceStatusExpired:
		if _, err := s.repo.SetStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return nil, err
		}
		order.Status = model.OrderStatusCancelled
		s.notifyUser(order.UserID, fmt.Sprintf("❌ Счет просрочен!\n\nЗаказ #%d отменен.", order.ID))

	case cryptopay.InvoiceStatusActive:
		// Оплата ещё не поступила, заказ остаётся в waiting_crypto.

	default:
		return nil, fmt.Errorf("unexpected invoice status: %s", status.Status)
	}

	return &CheckResult{Status: status.Status, Order: order}, nil
}

// RequestAdminAction фиксирует намерение администратора выполнить действие над
// заказом. Состояние заказа не меняется: нужен второй, финальный шаг.
func (s *Service) RequestAdminAction(adminID int64, action model.AdminAction, orderID int64) (model.PendingAdminAction, error) {
	if !s.IsAdmin(adminID) {
		return model.PendingAdminAction{}, ErrNotAdmin
	}

	intent := model.PendingAdminAction{AdminID: adminID, Action: action, OrderID: orderID}

	s.pendingMu.Lock()
	s.pending[adminID] = intent
	s.pendingMu.Unlock()

	return intent, nil
}

// PendingAction возвращает незавершённое намерение администратора, если оно есть.
func (s *Service) PendingAction(adminID int64) (model.PendingAdminAction, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	intent, ok := s.pending[adminID]
	return intent, ok
}

func (s *Service) clearPending(adminID int64) {
	s.pendingMu.Lock()
	delete(s.pending, adminID)
	s.pendingMu.Unlock()
}

// FinalizeAdminAction выполняет ранее запрошенное действие администратора и
// снимает его незавершённое намерение, каким бы промежуточным запросом оно ни
// было создано.
func (s *Service) FinalizeAdminAction(ctx context.Context, adminID int64, action model.AdminAction, orderID int64) (*model.Order, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrNotAdmin
	}

	defer s.clearPending(adminID)

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		target   model.OrderStatus
		userText string
	)

	switch action {
	case model.AdminActionConfirm:
		if order.Status.IsTerminal() || order.Status == model.OrderStatusConfirmed {
			return nil, fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, order.Status)
		}
		target = model.OrderStatusConfirmed
		userText = fmt.Sprintf("✅ Ваш заказ #%d подтвержден!\n\nТовар будет отправлен в течение 15 минут - 3 часа.", order.ID)

	case model.AdminActionReject:
		if order.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: reject in %s", ErrInvalidTransition, order.Status)
		}
		target = model.OrderStatusCancelled
		userText = fmt.Sprintf("❌ Ваш заказ #%d отклонен.\n\nПо вопросам обращайтесь в поддержку.", order.ID)

	case model.AdminActionDelivered:
		if order.Status != model.OrderStatusConfirmed {
			return nil, fmt.Errorf("%w: delivered in %s", ErrInvalidTransition, order.Status)
		}
		target = model.OrderStatusCompleted
		userText = fmt.Sprintf("🎉 Ваш заказ #%d выполнен!\n\nСпасибо за покупку! 😊", order.ID)

	default:
		return nil, fmt.Errorf("unknown admin action: %s", action)
	}

	changed, err := s.repo.SetStatus(ctx, orderID, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrInvalidTransition
	}

	order.Status = target
	s.notifyUser(order.UserID, userText)

	return order, nil
}

// ActiveOrders возвращает незавершённые заказы для админ-панели, новые первыми.
func (s *Service) ActiveOrders(ctx context.Context, adminID int64) ([]model.Order, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrNotAdmin
	}
	return s.repo.ListActiveOrders(ctx)
}

// OrderForAdmin возвращает заказ для карточки управления в админ-панели.
func (s *Service) OrderForAdmin(ctx context.Context, adminID, orderID int64) (*model.Order, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrNotAdmin
	}
	return s.repo.GetOrder(ctx, orderID)
}

// ActiveOrderCount возвращает число незавершённых заказов (для ops-сервера).
func (s *Service) ActiveOrderCount(ctx context.Context) (int, error) {
	orders, err := s.repo.ListActiveOrders(ctx)
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

func (s *Service) notifyUser(userID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(userID, text); err != nil {
		s.logger.Warn("user notification failed", zap.Int64("user", userID), zap.Error(err))
	}
}

func (s *Service) notifyAdmins(text string) {
	if s.notifier == nil {
		return
	}
	for adminID := range s.admins {
		if err := s.notifier.SendMessage(adminID, text); err != nil {
			s.logger.Warn("admin notification failed", zap.Int64("admin", adminID), zap.Error(err))
		}
	}
}

func (s *Service) adminOrderSummary(order *model.Order) string {
	text := fmt.Sprintf(
		"🆕 Новый заказ ожидает проверки\n\n🆔 Заказ: #%d\n👤 Пользователь: %d\n📦 Тип: %s\n💰 Сумма: %.2f RUB\n",
		order.ID, order.UserID, order.Kind, order.AmountRUB,
	)
	if order.Kind == model.OrderKindExchange {
		text += fmt.Sprintf("💸 К выдаче: %.2f USD\n", order.Details.AmountUSD)
	} else {
		text += fmt.Sprintf("👤 Получатель: %s\n", order.Recipient)
	}
	text += "\nДля проверки зайдите в /admin → 📦 Активные заказы"
	return text
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
