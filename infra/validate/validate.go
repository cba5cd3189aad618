// Package validate builds the request validator with the custom rules the
// payment request types rely on.
package validate

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// New returns a validator with CustomValidate applied
func New() *validator.Validate {
	v := validator.New()
	CustomValidate(v)
	return v
}

// CustomValidate registers the "currency" rule and lets numeric rules such
// as gt=0 apply to decimal.Decimal fields
func CustomValidate(v *validator.Validate) {
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}
