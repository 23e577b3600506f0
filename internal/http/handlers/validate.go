package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"service-dispatch/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return domain.ValidatePhone(fl.Field().String())
	})
	mustRegister(v, "vehicle_type", func(fl validator.FieldLevel) bool {
		return domain.VehicleType(fl.Field().String()).Valid()
	})
	mustRegister(v, "delivery_status", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseDeliveryStatus(fl.Field().String())
		return ok
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// validateStruct returns the first failed rule as "field: rule".
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s: %s", fe.Field(), fe.Tag())
}
