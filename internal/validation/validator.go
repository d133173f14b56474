package validation

import (
	"reflect"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/users"
)

// New returns a validator with the storefront's custom tags and struct rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// decimals validate as their float value so numeric tags apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("order_status", stringRule(orders.ValidStatus))
	_ = v.RegisterValidation("delivery_status", stringRule(orders.ValidDeliveryStatus))
	_ = v.RegisterValidation("user_role", stringRule(users.ValidRole))

	v.RegisterStructValidation(updateProductStructValidation, UpdateProductRequest{})
	v.RegisterStructValidation(updateOrderStructValidation, UpdateOrderRequest{})

	return v
}

func stringRule(ok func(string) bool) validatorv10.Func {
	return func(fl validatorv10.FieldLevel) bool {
		return ok(fl.Field().String())
	}
}

// updateProductStructValidation rejects an update that changes nothing.
func updateProductStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateProductRequest)
	if req.Title == nil && req.Image == nil && req.Description == nil &&
		req.Category == nil && req.Price == nil && req.Stock == nil {
		sl.ReportError(req, "UpdateProductRequest", "UpdateProductRequest", "at_least_one_field", "")
	}
}

func updateOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateOrderRequest)
	if req.Status == nil && req.DeliveryStatus == nil {
		sl.ReportError(req, "UpdateOrderRequest", "UpdateOrderRequest", "at_least_one_field", "")
	}
}
