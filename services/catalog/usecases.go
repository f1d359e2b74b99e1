package main

import (
	"context"
	"fmt"
	"log"
)

// CatalogUseCase contém a lógica de negócio do catálogo e do estoque
type CatalogUseCase struct {
	repository CatalogRepository
}

// NewCatalogUseCase cria uma nova instância de CatalogUseCase
func NewCatalogUseCase(repository CatalogRepository) *CatalogUseCase {
	return &CatalogUseCase{
		repository: repository,
	}
}

// GetItems busca os itens do catálogo pelos ids
func (uc *CatalogUseCase) GetItems(ctx context.Context, ids []int64) ([]ProductItem, error) {
	return uc.repository.GetItemsByIDs(ctx, ids)
}

// GetShippingMethod busca um método de envio pelo id
func (uc *CatalogUseCase) GetShippingMethod(ctx context.Context, id int64) (*ShippingMethod, error) {
	return uc.repository.GetShippingMethod(ctx, id)
}

// ApplyStockDecrement aplica um batch de decremento com idempotência por
// BatchID. Cada linha é subtraída condicionalmente: uma linha que deixaria
// o estoque negativo é rejeitada (fatal para aquela linha) e as demais ainda
// são aplicadas. Consumo efetivamente-única: redelivery do mesmo batch é um
// no-op.
func (uc *CatalogUseCase) ApplyStockDecrement(ctx context.Context, batch StockDecrementBatch) error {
	log.Printf("➡️ [STOCK DECREMENT] BatchID: %s | Lines: %d", batch.BatchID, len(batch.Requests))

	// 1. Inicia a transação
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback()

	// 2. Verificar idempotência dentro da transação
	processed, err := uc.repository.BatchProcessed(ctx, tx, batch.BatchID)
	if err != nil {
		return fmt.Errorf("erro ao verificar idempotência: %w", err)
	}

	if processed {
		log.Printf("ℹ️  [IDEMPOTENCY] Batch já processado | BatchID=%s", batch.BatchID)
		return nil // Retorna sucesso para manter idempotência
	}

	// 3. Aplica cada linha condicionalmente
	var rejected int
	for _, req := range batch.Requests {
		applied, err := uc.repository.DecrementStock(ctx, tx, req.ProductItemID, req.QuantityToSubtract)
		if err != nil {
			log.Printf("❌ [DECREMENT] | BatchID=%s ItemID=%d Failed to update: %v", batch.BatchID, req.ProductItemID, err)
			return err
		}
		if !applied {
			// Regra de Negócio: o contador nunca fica negativo
			rejected++
			log.Printf("❌ [DECREMENT] Rejected, would go negative | BatchID=%s | ItemID=%d | Qty=%d",
				batch.BatchID, req.ProductItemID, req.QuantityToSubtract)
		}
	}

	// 4. Marca o batch como processado
	if err := uc.repository.MarkBatchProcessed(ctx, tx, batch.BatchID); err != nil {
		return fmt.Errorf("erro ao registrar batch: %w", err)
	}

	// 5. Commit da transação
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("erro ao comitar decremento: %w", err)
	}

	if rejected > 0 {
		log.Printf("ℹ️ [STOCK DECREMENT] Applied with %d rejected line(s) | BatchID=%s", rejected, batch.BatchID)
	} else {
		log.Printf("✅ [STOCK DECREMENT] Success | BatchID=%s", batch.BatchID)
	}
	return nil
}
