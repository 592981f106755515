package orders

import (
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if id, ok := field.Interface().(uuid.UUID); ok && id != uuid.Nil {
			return id.String()
		}
		return ""
	}, uuid.UUID{})
	return v
}

// Validate checks a spec without touching storage. The returned error is a
// VALIDATION_ERROR whose details map field names to messages.
func Validate(spec Spec) error {
	details := map[string]string{}

	if err := validate.Struct(spec); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
		}
		for _, fe := range errs {
			details[fe.Field()] = validationMessage(fe)
		}
	}

	if spec.DesignType != "" && !spec.DesignType.IsValid() {
		details["design_type"] = "must be one of own-design, business-design, ai-generation"
	}
	if spec.OrderOption != "" && !spec.OrderOption.IsValid() {
		details["order_option"] = "must be delivery or pickup"
	}
	if !spec.ProductUnitPrice.IsPositive() {
		details["product_unit_price"] = "must be greater than 0"
	}
	if spec.TotalPrice.LessThan(decimal.NewFromInt(1)) {
		details["total_price"] = "must be at least 1"
	}

	if len(spec.Sizes) > 0 {
		sum := 0
		for size, qty := range spec.Sizes {
			if strings.TrimSpace(size) == "" {
				details["sizes"] = "size labels are required"
				continue
			}
			if qty < 0 {
				details["sizes."+size] = "must be at least 0"
				continue
			}
			sum += qty
		}
		if _, bad := details["sizes"]; !bad && sum != spec.TotalQuantity && spec.TotalQuantity >= 1 {
			details["sizes"] = fmt.Sprintf("size quantities sum to %d, expected %d", sum, spec.TotalQuantity)
		}
	}

	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}
