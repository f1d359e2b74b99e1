package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CatalogHandler contém os handlers HTTP do catálogo
type CatalogHandler struct {
	useCase *CatalogUseCase
}

// NewCatalogHandler cria uma nova instância de CatalogHandler
func NewCatalogHandler(useCase *CatalogUseCase) *CatalogHandler {
	return &CatalogHandler{
		useCase: useCase,
	}
}

// GetItems retorna os itens pedidos em ?ids=1,2,3 (leitura autoritativa de
// preço, desconto e estoque vivo)
func (h *CatalogHandler) GetItems(c *gin.Context) {
	rawIDs := c.Query("ids")
	if rawIDs == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids query param is required"})
		return
	}

	var ids []int64
	for _, raw := range strings.Split(rawIDs, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id: " + raw})
			return
		}
		ids = append(ids, id)
	}

	items, err := h.useCase.GetItems(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load items"})
		return
	}
	if items == nil {
		items = []ProductItem{}
	}

	c.JSON(http.StatusOK, items)
}

// GetShippingMethod resolve um método de envio pelo id
func (h *CatalogHandler) GetShippingMethod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shipping method id"})
		return
	}

	method, err := h.useCase.GetShippingMethod(c.Request.Context(), id)
	if errors.Is(err, ErrShippingMethodNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load shipping method"})
		return
	}

	c.JSON(http.StatusOK, method)
}

// HealthCheck verifica a saúde do serviço
func (h *CatalogHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "catalog-service",
	})
}
