package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vendasb2b/cart-engine/config"
	"github.com/vendasb2b/cart-engine/internal/app/controller"
	"github.com/vendasb2b/cart-engine/internal/middleware"
)

type Router struct {
	cartController    *controller.CartController
	catalogController *controller.CatalogController
	config            *config.Config
}

func NewRouter(
	cartController *controller.CartController,
	catalogController *controller.CatalogController,
	cfg *config.Config,
) *Router {
	return &Router{
		cartController:    cartController,
		catalogController: catalogController,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(cors.New(corsConfig(r.config.CORS.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Cart engine is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		v1.GET("/catalog", r.catalogController.GetCatalog)

		cart := v1.Group("/cart")
		cart.Use(middleware.RequireCartSession())
		{
			cart.GET("", r.cartController.GetCart)
			cart.DELETE("", r.cartController.ClearCart)
			cart.POST("/items", r.cartController.AddToCart)
			cart.PATCH("/items/:id", r.cartController.UpdateQuantity)
			cart.DELETE("/items/:id", r.cartController.RemoveItem)
			cart.PUT("/term", r.cartController.UpdateTerm)
			cart.PUT("/drawer", r.cartController.SetDrawer)
			cart.GET("/summary", r.cartController.GetSummary)
			cart.GET("/checkout", r.cartController.GetCheckout)
		}
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.CartSessionHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}
