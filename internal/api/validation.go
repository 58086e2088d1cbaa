package api

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"dormitory-housing-backend/internal/apperr"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the custom tags used by request
// structs and makes it report json field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
		v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}

// bindError turns a binding failure into a validation error with a message
// a client can act on.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("malformed request: %v", err)
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", field)
	case "notblank":
		return apperr.Validation("%s must not be blank", field)
	case "max":
		if fe.Kind() == reflect.String {
			return apperr.Validation("%s must be at most %s characters", field, fe.Param())
		}
		return apperr.Validation("%s must be at most %s", field, fe.Param())
	case "min":
		return apperr.Validation("%s must be at least %s", field, fe.Param())
	case "gt":
		return apperr.Validation("%s must be greater than %s", field, fe.Param())
	default:
		return apperr.Validation("%s is invalid", field)
	}
}

func parseIDParam(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id %q", raw)
	}
	return id, nil
}
