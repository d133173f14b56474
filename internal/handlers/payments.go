package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/shop"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

func registerPaymentRoutes(r *gin.Engine, d Deps) {
	r.POST("/initialize-esewa", func(c *gin.Context) {
		var req validation.InitializePaymentRequest
		if err := validation.BindAndValidate(c, &req, d.Validator); err != nil {
			return
		}
		out, err := d.Shop.InitiatePayment(c.Request.Context(), req.ItemID, req.TotalPrice)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"payment":           out.Payment,
			"purchasedItemData": out.Order,
		})
	})

	// The gateway redirects the shopper here with a base64 "data" query parameter.
	r.GET("/complete-payment", func(c *gin.Context) {
		ctx := c.Request.Context()
		data := c.Query("data")
		if data == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "missing data parameter",
			})
			return
		}

		p, err := d.Shop.CompletePayment(ctx, data, c.Request.URL.Query())
		switch {
		case errors.Is(err, shop.ErrAlreadyReconciled):
			logging.FromContext(ctx).Info("payment callback replayed")
		case err != nil:
			writeError(c, err)
			return
		default:
			logging.FromContext(ctx).Info("payment completed",
				zap.String("payment_id", p.PaymentID),
				zap.String("order_id", p.OrderID))
		}
		c.Redirect(http.StatusFound, d.FrontendURL)
	})
}
