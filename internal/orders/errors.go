package orders

import "github.com/ariefcatur/go-order-lifecycle/internal/apperr"

func ProductNotFoundError(id string) *apperr.Error {
	return apperr.NotFound(apperr.CodeProductNotFound, "product %s not found", id).
		WithMeta(map[string]any{"product": id})
}

func InsufficientStockError(productID string, available, requested int) *apperr.Error {
	return apperr.Conflict(apperr.CodeInsufficientStock,
		"insufficient stock for product %s: available %d, requested %d", productID, available, requested).
		WithMeta(map[string]any{"product": productID, "available": available, "requested": requested})
}

func OrderNotFoundError(id string) *apperr.Error {
	return apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id)
}

func CustomerNotFoundError(id string) *apperr.Error {
	return apperr.NotFound(apperr.CodeCustomerNotFound, "customer %s not found", id)
}

func ConcurrentUpdateError(id string) *apperr.Error {
	return apperr.Conflict(apperr.CodeConcurrentUpdate, "order %s changed status concurrently", id)
}
