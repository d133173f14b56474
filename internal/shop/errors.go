package shop

import "errors"

var (
	ErrInvalidPaymentMethod     = errors.New("invalid payment method")
	ErrInvalidOrder             = errors.New("invalid order")
	ErrDuplicateOrderRef        = errors.New("order reference already used")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrTotalMismatch            = errors.New("order total does not match product prices")
	ErrOrderNotFound            = errors.New("order not found")
	ErrProductMissing           = errors.New("product referenced by order not found")
	ErrPriceMismatch            = errors.New("item not found or price mismatch")
	ErrGateway                  = errors.New("payment gateway error")
	ErrVerificationFailed       = errors.New("payment verification failed")
	ErrAlreadyReconciled        = errors.New("payment already reconciled")
	ErrReconciliationInProgress = errors.New("payment reconciliation in progress")
)
