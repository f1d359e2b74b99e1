package main

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus representa os possíveis status de um pedido
const (
	OrderStatusAwaitingPayment = "awaiting_payment"
	OrderStatusPacking         = "packing"
)

// ShippingSnapshot é a cópia do endereço de entrega no momento da criação do
// pedido (snapshot, nunca referência viva ao cadastro do usuário)
type ShippingSnapshot struct {
	RecipientName string `json:"recipient_name" db:"recipient_name"`
	Street        string `json:"street" db:"street"`
	City          string `json:"city" db:"city"`
	Region        string `json:"region" db:"region"`
	PostalCode    string `json:"postal_code" db:"postal_code"`
	Country       string `json:"country" db:"country"`
}

// OrderLine é uma linha do pedido com o preço congelado na criação.
// As linhas pertencem ao agregado Order por valor e nunca são mutadas
// individualmente depois de congeladas.
type OrderLine struct {
	ProductItemID int64           `json:"product_item_id" db:"product_item_id"`
	ProductName   string          `json:"product_name" db:"product_name"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
}

// Subtotal retorna price * quantity
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order representa o agregado de pedido
type Order struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	UserEmail      string           `json:"user_email" db:"user_email"`
	Shipping       ShippingSnapshot `json:"shipping" db:"-"`
	ShippingMethod string           `json:"shipping_method" db:"shipping_method"`
	ShippingFee    decimal.Decimal  `json:"shipping_fee" db:"shipping_fee"`
	Lines          []OrderLine      `json:"lines" db:"-"`
	OrderTotal     decimal.Decimal  `json:"order_total" db:"order_total"`
	FinalTotal     decimal.Decimal  `json:"final_total" db:"final_total"`
	Currency       string           `json:"currency" db:"currency"`

	// Vínculo com o pagamento, preenchido apenas na confirmação
	PaymentID       string    `json:"payment_id,omitempty" db:"payment_id"`
	TransactionID   string    `json:"transaction_id,omitempty" db:"transaction_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	Gateway         string    `json:"gateway,omitempty" db:"gateway"`
	PaidAt          time.Time `json:"paid_at,omitempty" db:"paid_at"`
	PaymentStatus   string    `json:"payment_status,omitempty" db:"payment_status"`

	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewOrder cria uma nova instância de Order em awaiting_payment
func NewOrder(id, userID, userEmail string, shipping ShippingSnapshot, methodName string, shippingFee decimal.Decimal, currency string) *Order {
	return &Order{
		ID:             id,
		UserID:         userID,
		UserEmail:      userEmail,
		Shipping:       shipping,
		ShippingMethod: methodName,
		ShippingFee:    shippingFee,
		Currency:       currency,
		Status:         OrderStatusAwaitingPayment,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// EffectivePrice calcula o preço efetivo de um item do catálogo:
// basePrice * (1 - discount/100), arredondado para 2 casas (half-up)
func EffectivePrice(basePrice decimal.Decimal, discountPct int) decimal.Decimal {
	factor := decimal.NewFromInt(100 - int64(discountPct)).Div(decimal.NewFromInt(100))
	return basePrice.Mul(factor).Round(2)
}

// AddLine congela uma linha no pedido com o preço efetivo já calculado
func (o *Order) AddLine(productItemID int64, productName string, quantity int, price decimal.Decimal) {
	o.Lines = append(o.Lines, OrderLine{
		ProductItemID: productItemID,
		ProductName:   productName,
		Quantity:      quantity,
		Price:         price,
	})
}

// ComputeTotals calcula o total do pedido (soma das linhas congeladas) e o
// total final (total + frete). Chamado uma única vez, na criação.
func (o *Order) ComputeTotals() {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	o.OrderTotal = total
	o.FinalTotal = total.Add(o.ShippingFee)
}

// AttachPayment vincula um pagamento confirmado ao pedido e o move para
// packing. Só um pedido em awaiting_payment pode ser confirmado.
func (o *Order) AttachPayment(p *Payment) error {
	if o.Status != OrderStatusAwaitingPayment {
		return errors.New("only orders awaiting payment can be confirmed")
	}

	o.PaymentID = p.ID
	o.TransactionID = p.TransactionID
	o.PaymentIntentID = p.PaymentIntentID
	o.Gateway = p.Provider
	o.PaidAt = p.PaidAt
	o.PaymentStatus = p.Status
	o.Status = OrderStatusPacking
	o.UpdatedAt = time.Now()
	return nil
}
