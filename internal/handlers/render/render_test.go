package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_Responses(t *testing.T) {
	tests := []struct {
		name       string
		render     func(w http.ResponseWriter)
		code       int
		retryAfter string
		body       string
	}{
		{
			name:   "json",
			render: func(w http.ResponseWriter) { JSON(w, map[string]any{"subject": "42", "ttl": 900}) },
			code:   http.StatusOK,
			body:   `{"subject": "42", "ttl": 900}`,
		},
		{
			name:   "service error",
			render: func(w http.ResponseWriter) { ServiceError(w, "Origin not allowed", http.StatusForbidden) },
			code:   http.StatusForbidden,
			body:   `{"error": "service_error", "message": "Origin not allowed"}`,
		},
		{
			name:       "retry later",
			render:     func(w http.ResponseWriter) { RetryLater(w, "Too many requests", http.StatusTooManyRequests, 42) },
			code:       http.StatusTooManyRequests,
			retryAfter: "42",
			body:       `{"error": "service_error", "message": "Too many requests"}`,
		},
		{
			name:   "retry later without delay",
			render: func(w http.ResponseWriter) { RetryLater(w, "Too many requests", http.StatusTooManyRequests, 0) },
			code:   http.StatusTooManyRequests,
			body:   `{"error": "service_error", "message": "Too many requests"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			tt.render(rec)

			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			require.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			require.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestRender_BindAndValidate(t *testing.T) {
	type credentials struct {
		Username string `json:"username" validate:"required,username,max=8"`
		Password string `json:"password" validate:"required,min=3"`
	}

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{
			name: "valid",
			body: `{"username": "john", "password": "pwd"}`,
			code: http.StatusOK,
			want: `{"username": "john"}`,
		},
		{
			name: "empty body",
			body: ``,
			code: http.StatusBadRequest,
			want: `{"error": "decoding_failed", "message": "Request body is empty"}`,
		},
		{
			name: "invalid json",
			body: `invalid-json`,
			code: http.StatusBadRequest,
			want: `{"error": "decoding_failed", "message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"}`,
		},
		{
			name: "wrong type",
			body: `{"username": "john", "password": 123}`,
			code: http.StatusBadRequest,
			want: `{"error": "decoding_failed", "message": "Invalid data type for field 'password'"}`,
		},
		{
			name: "fields reported by json name",
			body: `{"username": "john doe!", "password": "12"}`,
			code: http.StatusBadRequest,
			want: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"username": "Only letters, digits and '.', '_', '-' are allowed",
					"password": "Value is too short (minimum 3)"
				}
			}`,
		},
		{
			name: "missing and too long",
			body: `{"username": "much-too-long"}`,
			code: http.StatusBadRequest,
			want: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"username": "Value is too long (maximum 8)",
					"password": "This field is required"
				}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(tt.body))

			value, err := BindAndValidate[credentials](rec, req)
			if err == nil {
				JSON(rec, map[string]string{"username": value.Username})
			}

			require.Equal(t, tt.code, rec.Code)
			require.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}
