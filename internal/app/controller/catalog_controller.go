package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	apperrors "github.com/vendasb2b/cart-engine/internal/errors"
)

type CatalogSource interface {
	Current() model.Catalog
	LoadedAt() time.Time
}

type CatalogController struct {
	catalog CatalogSource
}

func NewCatalogController(catalog CatalogSource) *CatalogController {
	return &CatalogController{catalog: catalog}
}

// GetCatalog returns the current product list
// GET /api/v1/catalog
func (ctrl *CatalogController) GetCatalog(c *gin.Context) {
	products := ctrl.catalog.Current()
	if products == nil {
		apperrors.ServiceUnavailable(c, apperrors.CatalogUnavailable, "Catálogo indisponível no momento")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":  products,
		"count":     len(products),
		"loaded_at": ctrl.catalog.LoadedAt(),
	})
}
