package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/catalog"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/shop"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
	"github.com/imrishuroy/go-esewa-storefront/internal/users"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable maps domain errors to responses. First match wins.
var errorTable = []errorMapping{
	{catalog.ErrNotFound, http.StatusNotFound, "not_found"},
	{catalog.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{orders.ErrNotFound, http.StatusNotFound, "order_not_found"},

	{users.ErrNotFound, http.StatusNotFound, "user_not_found"},
	{users.ErrAlreadyExists, http.StatusBadRequest, "already_exists"},
	{users.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{users.ErrInactive, http.StatusForbidden, "account_inactive"},
	{users.ErrPasswordRequired, http.StatusBadRequest, "password_required"},
	{users.ErrPasswordReused, http.StatusBadRequest, "password_reused"},
	{users.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},

	{shop.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{shop.ErrInvalidOrder, http.StatusBadRequest, "invalid_order"},
	{shop.ErrDuplicateOrderRef, http.StatusConflict, "duplicate_order_ref"},
	{shop.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{shop.ErrTotalMismatch, http.StatusBadRequest, "total_mismatch"},
	{shop.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{shop.ErrProductMissing, http.StatusInternalServerError, "product_missing"},
	{shop.ErrPriceMismatch, http.StatusBadRequest, "price_mismatch"},
	{shop.ErrGateway, http.StatusInternalServerError, "gateway_error"},
	{shop.ErrVerificationFailed, http.StatusInternalServerError, "verification_failed"},
	{shop.ErrReconciliationInProgress, http.StatusConflict, "reconciliation_in_progress"},

	{txn.ErrConflict, http.StatusConflict, "transaction_conflict"},
}

// classify returns the response status and code for err.
func classify(err error) (int, string, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, "internal_error", false
}

// writeError responds with {"error": code, "message": text}. Unclassified errors
// are logged in full and reported to the client without detail.
func writeError(c *gin.Context, err error) {
	status, code, known := classify(err)
	msg := err.Error()
	logger := logging.FromContext(c.Request.Context())
	if !known {
		logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		msg = "Server error"
	} else if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}
