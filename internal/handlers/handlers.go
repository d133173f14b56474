package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/catalog"
	"github.com/imrishuroy/go-esewa-storefront/internal/metrics"
	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/shop"
	"github.com/imrishuroy/go-esewa-storefront/internal/users"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

// Deps groups dependencies for the HTTP routes.
type Deps struct {
	Products       *catalog.Store
	Categories     *catalog.CategoryStore
	Orders         *orders.Store
	Shop           *shop.Service
	Users          *users.Service
	Validator      *validatorv10.Validate
	Logger         *zap.Logger
	Metrics        *metrics.HTTP
	MetricsHandler http.Handler
	FrontendURL    string
	AdminAPIKey    string
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	RegisterRoutes(r, d)
	return r
}

// RegisterRoutes registers catalog, account, order and payment routes.
func RegisterRoutes(r *gin.Engine, d Deps) {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	admin := RequireAPIKey(d.AdminAPIKey)

	registerCatalogRoutes(r, d, admin)
	registerUserRoutes(r, d, admin)
	registerOrdersRoutes(r, d, admin)
	registerPaymentRoutes(r, d)
}
