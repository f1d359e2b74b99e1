package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// CatalogItem é a visão que o serviço de pedidos tem de um item do catálogo:
// preço e desconto vigentes mais o estoque vivo
type CatalogItem struct {
	ID          int64           `json:"id"`
	ProductName string          `json:"product_name"`
	Stock       int             `json:"stock"`
	BasePrice   decimal.Decimal `json:"base_price"`
	DiscountPct int             `json:"discount_pct"`
}

// ShippingMethodInfo é a visão do método de envio resolvido no catálogo
type ShippingMethodInfo struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Fee  decimal.Decimal `json:"fee"`
}

// CatalogService abstrai as consultas síncronas ao serviço de catálogo
type CatalogService interface {
	// GetItems busca os itens autoritativos por id. Ids ausentes fazem a
	// chamada falhar com NotFound (nenhum resultado parcial).
	GetItems(ctx context.Context, ids []int64) (map[int64]CatalogItem, error)

	// GetShippingMethod resolve um método de envio pelo id
	GetShippingMethod(ctx context.Context, id int64) (*ShippingMethodInfo, error)
}

// CatalogClient implementa CatalogService via HTTP
type CatalogClient struct {
	client *resty.Client
}

// NewCatalogClient cria uma nova instância de CatalogClient
func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second),
	}
}

// GetItems busca os itens do catálogo por id
func (c *CatalogClient) GetItems(ctx context.Context, ids []int64) (map[int64]CatalogItem, error) {
	idStrs := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrs = append(idStrs, strconv.FormatInt(id, 10))
	}

	var items []CatalogItem
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(idStrs, ",")).
		SetResult(&items).
		Get("/api/items")
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "catalog items request failed")
	}
	if resp.IsError() {
		return nil, NewCheckoutError(KindUpstream, "catalog items request returned %d", resp.StatusCode())
	}

	byID := make(map[int64]CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, NewCheckoutError(KindNotFound, "catalog item %d not found", id)
		}
	}

	return byID, nil
}

// GetShippingMethod resolve um método de envio pelo id
func (c *CatalogClient) GetShippingMethod(ctx context.Context, id int64) (*ShippingMethodInfo, error) {
	var method ShippingMethodInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&method).
		Get(fmt.Sprintf("/api/shipping-methods/%d", id))
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "shipping method request failed")
	}
	if resp.StatusCode() == 404 {
		return nil, NewCheckoutError(KindNotFound, "shipping method %d not found", id)
	}
	if resp.IsError() {
		return nil, NewCheckoutError(KindUpstream, "shipping method request returned %d", resp.StatusCode())
	}

	return &method, nil
}
