package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swordsar/digistore-bot/internal/model"
)

func TestOrderIDFromCallback(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		prefix string
		wantID int64
		wantOK bool
	}{
		{
			name:   "ValidID",
			data:   "card_pay_42",
			prefix: "card_pay_",
			wantID: 42,
			wantOK: true,
		},
		{
			name:   "LargeID",
			data:   "manage_order_6997318168",
			prefix: "manage_order_",
			wantID: 6997318168,
			wantOK: true,
		},
		{
			name:   "WrongPrefix",
			data:   "crypto_pay_42",
			prefix: "card_pay_",
			wantOK: false,
		},
		{
			name:   "EmptyID",
			data:   "card_pay_",
			prefix: "card_pay_",
			wantOK: false,
		},
		{
			name:   "NotANumber",
			data:   "card_pay_abc",
			prefix: "card_pay_",
			wantOK: false,
		},
		{
			name:   "NegativeID",
			data:   "card_pay_-5",
			prefix: "card_pay_",
			wantOK: false,
		},
		{
			name:   "ZeroID",
			data:   "card_pay_0",
			prefix: "card_pay_",
			wantOK: false,
		},
		{
			name:   "TrailingGarbage",
			data:   "card_pay_42x",
			prefix: "card_pay_",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := orderIDFromCallback(tt.data, tt.prefix)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestStatusEmojiCoversAllStatuses(t *testing.T) {
	statuses := []model.OrderStatus{
		model.OrderStatusPending,
		model.OrderStatusWaitingPayment,
		model.OrderStatusWaitingConfirmation,
		model.OrderStatusWaitingCrypto,
		model.OrderStatusConfirmed,
		model.OrderStatusCompleted,
		model.OrderStatusCancelled,
	}

	for _, status := range statuses {
		assert.NotEqual(t, "❓", statusEmoji(status), "status %s has no emoji", status)
	}
	assert.Equal(t, "❓", statusEmoji(model.OrderStatus("bogus")))
}
