// Package session отслеживает состояние многошагового диалога с пользователем.
package session

import "sync"

// Step описывает ожидаемый от пользователя следующий ввод.
type Step string

const (
	StepStarsRecipient   Step = "waiting_stars_recipient"
	StepStarsAmount      Step = "waiting_stars_amount"
	StepPremiumRecipient Step = "waiting_premium_recipient"
	StepExchangeAmount   Step = "waiting_exchange_amount"
	StepPaymentPhoto     Step = "waiting_payment_photo"
)

// Session хранит накопленный за диалог частичный ввод одного пользователя.
// Сессия эфемерна: рестарт процесса теряет незавершённый ввод.
type Session struct {
	Step      Step
	Recipient string
	Period    string
	AmountRUB float64
	OrderID   int64
}

// Manager — потокобезопасное хранилище сессий, по одной на пользователя.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager создаёт пустое хранилище сессий.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
	}
}

// Start начинает новый диалог, безусловно заменяя предыдущую сессию пользователя.
func (m *Manager) Start(userID int64, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := s
	m.sessions[userID] = &copied
}

// Get возвращает копию текущей сессии пользователя, если она есть.
func (m *Manager) Get(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Clear завершает диалог пользователя.
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
