package main

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PayHereGateway implementa PaymentGateway no modelo redirect-plus-callback:
// o cliente é redirecionado com um hash de correlação derivado do segredo
// compartilhado, e o gateway confirma via POST de callback com md5sig.
type PayHereGateway struct {
	merchantID  string
	secret      string
	checkoutURL string
}

// NewPayHereGateway cria uma nova instância de PayHereGateway
func NewPayHereGateway(merchantID, secret, checkoutURL string) *PayHereGateway {
	return &PayHereGateway{
		merchantID:  merchantID,
		secret:      secret,
		checkoutURL: checkoutURL,
	}
}

// Name retorna o nome do provedor
func (g *PayHereGateway) Name() string {
	return "payhere"
}

// Status codes do protocolo de callback
const (
	payhereStatusSuccess    = "2"
	payhereStatusPending    = "0"
	payhereStatusCanceled   = "-1"
	payhereStatusFailed     = "-2"
	payhereStatusChargeback = "-3"
)

// CreateSession monta a URL de redirect com o hash de correlação:
// UPPER(MD5(merchantID + orderID + amount + currency + UPPER(MD5(secret))))
func (g *PayHereGateway) CreateSession(ctx context.Context, order *Order, successURL, cancelURL string) (*CheckoutSession, error) {
	amount := order.FinalTotal.StringFixed(2)

	params := url.Values{}
	params.Set("merchant_id", g.merchantID)
	params.Set("order_id", order.ID)
	params.Set("items", orderItemsLabel(order))
	params.Set("amount", amount)
	params.Set("currency", order.Currency)
	params.Set("return_url", successURL)
	params.Set("cancel_url", cancelURL)
	params.Set("custom_1", order.UserID)
	params.Set("hash", g.requestHash(order.ID, amount, order.Currency))

	return &CheckoutSession{
		SessionID:   "ph-" + order.ID,
		RedirectURL: g.checkoutURL + "?" + params.Encode(),
	}, nil
}

// VerifyCallback valida o md5sig do POST de notificação:
// UPPER(MD5(merchantID + orderID + amount + currency + statusCode + UPPER(MD5(secret))))
func (g *PayHereGateway) VerifyCallback(form url.Values) (*PaymentEvent, error) {
	orderID := form.Get("order_id")
	amount := form.Get("payhere_amount")
	currency := form.Get("payhere_currency")
	statusCode := form.Get("status_code")
	md5sig := form.Get("md5sig")

	if orderID == "" || statusCode == "" {
		return nil, NewCheckoutError(KindInvalidRequest, "callback missing order_id or status_code")
	}

	expected := upperMD5(g.merchantID + orderID + amount + currency + statusCode + upperMD5(g.secret))
	if !hmac.Equal([]byte(expected), []byte(md5sig)) {
		return nil, NewCheckoutError(KindAuthentication, "callback md5sig mismatch for order %s", orderID)
	}

	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, WrapCheckoutError(KindInvalidRequest, err, "callback amount %q is not numeric", amount)
	}

	var status string
	switch statusCode {
	case payhereStatusSuccess:
		status = EventStatusSucceeded
	case payhereStatusPending:
		status = EventStatusPending
	case payhereStatusCanceled:
		status = EventStatusCanceled
	default:
		status = EventStatusFailed
	}

	paymentID := form.Get("payment_id")
	return &PaymentEvent{
		EventID:         "ph-cb-" + paymentID,
		OrderID:         orderID,
		SessionID:       "ph-" + orderID,
		TransactionID:   paymentID,
		PaymentIntentID: "ph-intent-" + paymentID,
		Status:          status,
		Amount:          parsedAmount,
		Currency:        currency,
		CardLast4:       lastFour(form.Get("card_no")),
		CardBrand:       form.Get("method"),
		OccurredAt:      time.Now(),
	}, nil
}

// VerifyWebhook não se aplica ao modelo de redirect: o PayHere entrega o
// callback como form POST, tratado por VerifyCallback
func (g *PayHereGateway) VerifyWebhook(body []byte, headers map[string]string) (*PaymentEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, WrapCheckoutError(KindInvalidRequest, err, "malformed callback body")
	}
	return g.VerifyCallback(form)
}

// FetchSession não é suportado: o protocolo de redirect não expõe consulta
// de sessão, a confirmação chega apenas pelo callback
func (g *PayHereGateway) FetchSession(ctx context.Context, sessionID string) (*PaymentEvent, error) {
	return nil, NewCheckoutError(KindUpstream, "payhere gateway does not support session polling")
}

func (g *PayHereGateway) requestHash(orderID, amount, currency string) string {
	return upperMD5(g.merchantID + orderID + amount + currency + upperMD5(g.secret))
}

// lastFour reduz o número mascarado do callback (ex: ****1234) aos quatro
// dígitos finais
func lastFour(cardNo string) string {
	if len(cardNo) <= 4 {
		return cardNo
	}
	return cardNo[len(cardNo)-4:]
}

// upperMD5 retorna o MD5 hex em maiúsculas, como o protocolo exige
func upperMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// orderItemsLabel resume as linhas para o campo de descrição do redirect
func orderItemsLabel(order *Order) string {
	names := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		names = append(names, line.ProductName)
	}
	return strings.Join(names, ", ")
}
