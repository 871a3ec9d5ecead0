package v1

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/types"
)

var registerOnce sync.Once

// RegisterValidators adds the quantity and money rules to gin's validator.
//
//	qty        quantity > 0
//	qty_nonneg quantity >= 0
//	money      decimal >= 0
//	money_pos  decimal > 0
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

		rules := map[string]validator.Func{
			"qty":        quantityRule(func(q types.Quantity) bool { return q.IsPositive() }),
			"qty_nonneg": quantityRule(func(q types.Quantity) bool { return !q.IsNegative() }),
			"money":      moneyRule(func(d decimal.Decimal) bool { return !d.IsNegative() }),
			"money_pos":  moneyRule(func(d decimal.Decimal) bool { return d.IsPositive() }),
		}
		for tag, fn := range rules {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
	})
	return err
}

// decimalValue exposes decimals to rules as their string form.
func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func quantityRule(ok func(types.Quantity) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Int64:
			return ok(types.Quantity(fl.Field().Int()))
		default:
			return false
		}
	}
}

func moneyRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ok(d)
	}
}
