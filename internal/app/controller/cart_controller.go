package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/app/service"
	apperrors "github.com/vendasb2b/cart-engine/internal/errors"
	"github.com/vendasb2b/cart-engine/internal/middleware"
)

// ProductLookup resolves products from the current catalog.
type ProductLookup interface {
	Current() model.Catalog
	Lookup(productID, kitCode string) (model.Product, error)
}

// CartRegistry returns the cart for a buyer session.
type CartRegistry interface {
	Get(sessionID string) (*service.CartStore, error)
}

type CartController struct {
	carts   CartRegistry
	catalog ProductLookup
}

func NewCartController(carts CartRegistry, catalog ProductLookup) *CartController {
	return &CartController{
		carts:   carts,
		catalog: catalog,
	}
}

type AddToCartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	KitCode   string `json:"kit_code"`
	Size      string `json:"size"`
	Term      string `json:"term"`
	Count     int    `json:"count" binding:"omitempty,gt=0"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type UpdateTermRequest struct {
	Term string `json:"term" binding:"required"`
}

type SetDrawerRequest struct {
	Open *bool `json:"open" binding:"required"`
}

type CartResponse struct {
	Items        []model.CartItem               `json:"items"`
	Count        int                            `json:"count"`
	Pending      int                            `json:"pending"`
	Term         model.Term                     `json:"term"`
	TermLabel    string                         `json:"term_label"`
	DrawerOpen   bool                           `json:"drawer_open"`
	Total        decimal.Decimal                `json:"total"`
	TotalsByTerm map[model.Term]decimal.Decimal `json:"totals_by_term"`
}

func newCartResponse(store *service.CartStore) CartResponse {
	snapshot := store.Snapshot()
	items := snapshot.Items
	if items == nil {
		items = []model.CartItem{}
	}
	return CartResponse{
		Items:        items,
		Count:        len(items),
		Pending:      len(snapshot.Pending),
		Term:         snapshot.SelectedTerm,
		TermLabel:    snapshot.SelectedTerm.Label(),
		DrawerOpen:   snapshot.DrawerOpen,
		Total:        service.Total(items, snapshot.SelectedTerm),
		TotalsByTerm: service.TotalsByTerm(items),
	}
}

// cart resolves the session's cart, writing the error response when it can't.
func (ctrl *CartController) cart(c *gin.Context) (*service.CartStore, bool) {
	session, ok := middleware.GetCartSession(c)
	if !ok {
		apperrors.BadRequest(c, apperrors.SessionRequired, "Cabeçalho X-Cart-Session é obrigatório")
		return nil, false
	}
	store, err := ctrl.carts.Get(session)
	if err != nil {
		middleware.GetLoggerFromContext(c).Warn("Cart session rejected", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.RespondWithParsedError(c, err)
		return nil, false
	}
	return store, true
}

func hasItem(store *service.CartStore, itemID string) bool {
	for _, item := range store.Items() {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// GetCart returns the buyer's cart
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(store))
}

// AddToCart adds a product or kit variant to the cart
// POST /api/v1/cart/items
func (ctrl *CartController) AddToCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.RespondWithValidationError(c, map[string]string{"body": err.Error()})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	term := store.SelectedTerm()
	if req.Term != "" {
		parsed, ok := model.ParseTerm(req.Term)
		if !ok {
			apperrors.BadRequest(c, apperrors.ValidationInvalidTerm, "Condição de pagamento inválida")
			return
		}
		term = parsed
	}

	product, err := ctrl.catalog.Lookup(req.ProductID, req.KitCode)
	if err != nil {
		log.Warn("Product lookup failed", map[string]interface{}{
			"product_id": req.ProductID,
			"kit_code":   req.KitCode,
			"error":      err.Error(),
		})
		apperrors.RespondWithParsedError(c, err)
		return
	}

	store.AddItem(product, req.Size, term, req.Count)

	log.Info("Item added to cart", map[string]interface{}{
		"product_id": req.ProductID,
		"kit_code":   req.KitCode,
		"count":      req.Count,
	})
	c.JSON(http.StatusCreated, newCartResponse(store))
}

// UpdateQuantity sets the quantity of a line; zero removes it
// PATCH /api/v1/cart/items/:id
func (ctrl *CartController) UpdateQuantity(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithValidationError(c, map[string]string{"quantity": "obrigatório"})
		return
	}

	itemID := c.Param("id")
	if !hasItem(store, itemID) {
		apperrors.NotFound(c, apperrors.CartItemNotFound, "Item não encontrado no carrinho")
		return
	}

	store.UpdateQuantity(itemID, *req.Quantity)
	c.JSON(http.StatusOK, newCartResponse(store))
}

// RemoveItem deletes a line
// DELETE /api/v1/cart/items/:id
func (ctrl *CartController) RemoveItem(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	itemID := c.Param("id")
	if !hasItem(store, itemID) {
		apperrors.NotFound(c, apperrors.CartItemNotFound, "Item não encontrado no carrinho")
		return
	}

	store.RemoveItem(itemID)
	c.JSON(http.StatusOK, newCartResponse(store))
}

// UpdateTerm selects the payment term for the whole cart
// PUT /api/v1/cart/term
func (ctrl *CartController) UpdateTerm(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	var req UpdateTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithValidationError(c, map[string]string{"term": "obrigatório"})
		return
	}
	term, valid := model.ParseTerm(req.Term)
	if !valid {
		apperrors.BadRequest(c, apperrors.ValidationInvalidTerm, "Condição de pagamento inválida")
		return
	}

	store.UpdateGlobalTerm(term, ctrl.catalog.Current())
	c.JSON(http.StatusOK, newCartResponse(store))
}

// SetDrawer opens or closes the cart drawer
// PUT /api/v1/cart/drawer
func (ctrl *CartController) SetDrawer(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	var req SetDrawerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithValidationError(c, map[string]string{"open": "obrigatório"})
		return
	}

	store.SetDrawerOpen(*req.Open)
	c.JSON(http.StatusOK, newCartResponse(store))
}

// ClearCart empties the cart
// DELETE /api/v1/cart
func (ctrl *CartController) ClearCart(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	store.Clear()
	middleware.GetLoggerFromContext(c).Info("Cart cleared by buyer")
	c.JSON(http.StatusOK, newCartResponse(store))
}

// GetSummary renders the cart as a shareable order message
// GET /api/v1/cart/summary?buyer=
func (ctrl *CartController) GetSummary(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	summary := service.BuildOrderSummary(store.Items(), store.SelectedTerm(), c.Query("buyer"))
	c.String(http.StatusOK, summary)
}

// GetCheckout returns the order payload for the selected term
// GET /api/v1/cart/checkout
func (ctrl *CartController) GetCheckout(c *gin.Context) {
	store, ok := ctrl.cart(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, service.BuildCheckoutPayload(store.Items(), store.SelectedTerm()))
}
