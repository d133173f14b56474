package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/shop"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

func registerOrdersRoutes(r *gin.Engine, d Deps, admin gin.HandlerFunc) {
	r.POST("/orders", func(c *gin.Context) {
		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}

		items := make([]orders.LineItem, 0, len(req.Products))
		for _, it := range req.Products {
			items = append(items, orders.LineItem{
				ProductID:   it.ProductID,
				Name:        it.Name,
				Quantity:    it.Quantity,
				Image:       it.Image,
				Description: it.Description,
			})
		}

		o, err := d.Shop.PlaceOrder(c.Request.Context(), shop.PlaceOrderInput{
			OrderRef:      req.OrderID,
			UserID:        req.UserID,
			Username:      req.Username,
			PhoneNumber:   req.PhoneNumber,
			Email:         req.Email,
			Address:       req.Address,
			Products:      items,
			Price:         req.Price,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", "/orders/"+o.OrderID)
		c.JSON(http.StatusCreated, gin.H{"message": "Order placed successfully", "order": o})
	})

	r.DELETE("/orders/:orderId", func(c *gin.Context) {
		if err := d.Shop.CancelOrder(c.Request.Context(), c.Param("orderId")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order deleted and stock restored successfully"})
	})

	r.GET("/orders/:userId", func(c *gin.Context) {
		list, err := d.Orders.ListByUser(c.Request.Context(), c.Param("userId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/orders", admin, func(c *gin.Context) {
		list, err := d.Orders.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.PUT("/orders/:id", admin, func(c *gin.Context) {
		var req validation.UpdateOrderRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		o, err := d.Orders.Update(c.Request.Context(), c.Param("id"), req.Status, req.DeliveryStatus)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})
}
