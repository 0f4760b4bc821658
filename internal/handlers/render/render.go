// Package render writes JSON responses and binds JSON requests.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	write(w, data, http.StatusOK)
}

func ServiceError(w http.ResponseWriter, message string, code int) {
	write(w, ErrorResponse{Error: ServiceErrorType, Message: message}, code)
}

// RetryLater is ServiceError with Retry-After header
// Non positive retryAfterSeconds omits the header
func RetryLater(w http.ResponseWriter, message string, code int, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	ServiceError(w, message, code)
}

// BindAndValidate decodes JSON body into T and validates it by struct tags
// On error the 400 response is already written, caller only has to return
func BindAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		write(w, ErrorResponse{Error: DecodingErrorType, Message: decodeMessage(err)}, http.StatusBadRequest)
		return value, err
	}

	err := validate.Struct(value)
	var errs validator.ValidationErrors
	switch {
	case err == nil:
		return value, nil
	case errors.As(err, &errs):
		write(w, ErrorResponse{Error: ValidationErrorType, Message: "Request validation failed", Fields: fieldMessages(errs)}, http.StatusBadRequest)
	default:
		ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
	return value, err
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is empty"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	default:
		return fmt.Sprintf("Failed to parse JSON: %s", err)
	}
}

func write(w http.ResponseWriter, data any, code int) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
