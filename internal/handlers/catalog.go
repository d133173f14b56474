package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/catalog"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

func registerCatalogRoutes(r *gin.Engine, d Deps, admin gin.HandlerFunc) {
	r.GET("/products", func(c *gin.Context) {
		list, err := d.Products.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/products/:id", func(c *gin.Context) {
		p, err := d.Products.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if p == nil {
			writeError(c, catalog.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.POST("/products", admin, func(c *gin.Context) {
		var req validation.CreateProductRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		p, err := d.Products.Create(c.Request.Context(), catalog.Product{
			Title:       req.Title,
			Image:       req.Image,
			Description: req.Description,
			Category:    req.Category,
			Price:       req.Price,
			Stock:       req.Stock,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", "/products/"+p.ProductID)
		c.JSON(http.StatusCreated, p)
	})

	r.PUT("/products/:id", admin, func(c *gin.Context) {
		var req validation.UpdateProductRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		p, err := d.Products.Update(c.Request.Context(), c.Param("id"), catalog.ProductUpdate{
			Title:       req.Title,
			Image:       req.Image,
			Description: req.Description,
			Category:    req.Category,
			Price:       req.Price,
			Stock:       req.Stock,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.DELETE("/products/:id", admin, func(c *gin.Context) {
		if _, err := d.Products.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
	})

	// Stock changes stay public: checkout clients call this directly.
	r.PUT("/products/:id/stock", func(c *gin.Context) {
		var req validation.StockChangeRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		ctx := c.Request.Context()
		stock, err := d.Products.AdjustStock(ctx, c.Param("id"), *req.QuantityChange)
		if err != nil {
			writeError(c, err)
			return
		}
		logging.FromContext(ctx).Info("stock adjusted",
			zap.String("product_id", c.Param("id")),
			zap.Int("delta", *req.QuantityChange),
			zap.Int("stock", stock))
		c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "stock": stock})
	})

	r.GET("/categories", func(c *gin.Context) {
		list, err := d.Categories.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.POST("/categories", admin, func(c *gin.Context) {
		var req validation.CreateCategoryRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		cat, err := d.Categories.Create(c.Request.Context(), req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cat)
	})

	r.DELETE("/categories/:id", admin, func(c *gin.Context) {
		if _, err := d.Categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
	})
}
