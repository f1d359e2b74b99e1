package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus representa os possíveis status de um pagamento
const (
	PaymentStatusRequiresPaymentMethod = "requires_payment_method"
	PaymentStatusRequiresConfirmation  = "requires_confirmation"
	PaymentStatusRequiresAction        = "requires_action"
	PaymentStatusProcessing            = "processing"
	PaymentStatusSucceeded             = "succeeded"
	PaymentStatusCanceled              = "canceled"
	PaymentStatusFailed                = "failed"
)

// Payment é um registro imutável do ledger de pagamentos. Um registro só é
// criado quando o gateway confirma sucesso e nunca é alterado depois.
// TransactionID, PaymentIntentID e ShopOrderID são unique de forma
// independente no banco: é isso que garante a idempotência do replay.
type Payment struct {
	ID              string          `json:"id" db:"id"`
	TransactionID   string          `json:"transaction_id" db:"transaction_id"`
	PaymentIntentID string          `json:"payment_intent_id" db:"payment_intent_id"`
	ShopOrderID     string          `json:"shop_order_id" db:"shop_order_id"`
	Provider        string          `json:"provider" db:"provider"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	CardLast4       string          `json:"card_last4,omitempty" db:"card_last4"`
	CardBrand       string          `json:"card_brand,omitempty" db:"card_brand"`
	Status          string          `json:"status" db:"status"`
	PaidAt          time.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// NewSucceededPayment cria o registro de um pagamento confirmado pelo gateway
func NewSucceededPayment(event PaymentEvent, provider string) *Payment {
	return &Payment{
		ID:              uuid.New().String(),
		TransactionID:   event.TransactionID,
		PaymentIntentID: event.PaymentIntentID,
		ShopOrderID:     event.OrderID,
		Provider:        provider,
		Amount:          event.Amount,
		Currency:        event.Currency,
		CardLast4:       event.CardLast4,
		CardBrand:       event.CardBrand,
		Status:          PaymentStatusSucceeded,
		PaidAt:          event.OccurredAt,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

// PaymentConfirmation é a resposta de confirmação devolvida ao caller
// (webhook e verify compartilham o mesmo formato)
type PaymentConfirmation struct {
	ID              string `json:"id"`
	TransactionID   string `json:"transaction_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	OrderID         string `json:"order_id"`
	Status          string `json:"status"`
}
