package common

import (
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct tag validation and converts failures into
// a 400 AppError with per-field details.
func ValidateStruct(code string, v any) *AppError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewAppError(code, "invalid request", http.StatusBadRequest, err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return &AppError{
		Code:       code,
		Message:    "invalid request",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}
