package errors

// Error codes returned in the "error" field of every error response.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map messages from these codes.

const (
	// ==================== Session (SESSION_) ====================
	SessionRequired = "SESSION_REQUIRED" // X-Cart-Session header missing
	SessionInvalid  = "SESSION_INVALID"  // malformed session id

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidTerm  = "VALIDATION_INVALID_TERM"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Catalog (CATALOG_) ====================
	CatalogUnavailable     = "CATALOG_UNAVAILABLE"
	CatalogProductNotFound = "CATALOG_PRODUCT_NOT_FOUND"
	CatalogKitNotFound     = "CATALOG_KIT_NOT_FOUND"

	// ==================== Cart (CART_) ====================
	CartItemNotFound = "CART_ITEM_NOT_FOUND"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError = "INTERNAL_SERVER_ERROR"
)
