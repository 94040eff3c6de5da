package errors

import (
	"errors"
	"net/http"

	"github.com/vendasb2b/cart-engine/internal/app/service"
	"github.com/vendasb2b/cart-engine/internal/catalog"
)

// ErrorInfo is the response an error maps to.
type ErrorInfo struct {
	Status  int
	Code    string
	Message string
}

// ParseError converts domain errors into a response without leaking internal
// details. Unknown errors become a generic internal error.
func ParseError(err error) ErrorInfo {
	switch {
	case err == nil:
		return ErrorInfo{Status: http.StatusInternalServerError, Code: InternalServerError, Message: "Erro interno"}

	case errors.Is(err, service.ErrInvalidSession):
		return ErrorInfo{Status: http.StatusBadRequest, Code: SessionInvalid, Message: "Sessão de carrinho inválida"}

	case errors.Is(err, catalog.ErrNoCatalog):
		return ErrorInfo{Status: http.StatusServiceUnavailable, Code: CatalogUnavailable, Message: "Catálogo indisponível no momento"}
	case errors.Is(err, catalog.ErrProductNotFound):
		return ErrorInfo{Status: http.StatusNotFound, Code: CatalogProductNotFound, Message: "Produto não encontrado"}
	case errors.Is(err, catalog.ErrKitNotFound):
		return ErrorInfo{Status: http.StatusNotFound, Code: CatalogKitNotFound, Message: "Kit não encontrado para este produto"}
	}

	return ErrorInfo{
		Status:  http.StatusInternalServerError,
		Code:    InternalServerError,
		Message: "Erro interno. Tente novamente em instantes",
	}
}
