package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/campushub/api/internal/platform/httpx"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// normalizer is implemented by requests whose enum fields are matched case-insensitively, so
// validation sees the same canonical value the services do.
type normalizer interface {
	normalize()
}

// bindJSON decodes and validates the request body into dst. On failure the error response has
// already been written and false is returned.
func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		var httpErr httpx.Error
		if !errors.As(err, &httpErr) {
			httpErr = httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest)
		}
		httpx.WriteError(r.Context(), w, httpErr)
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := requestValidator().Struct(dst); err != nil {
		httpx.WriteError(r.Context(), w, validationError(err))
		return false
	}
	return true
}

func validationError(err error) httpx.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describeFieldError(fe)
	}
	first := fieldErrs[0]
	return httpx.NewError("invalid_request", fmt.Sprintf("%s %s", first.Field(), describeFieldError(first)), http.StatusBadRequest).
		WithDetails(map[string]any{"fields": fields})
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
