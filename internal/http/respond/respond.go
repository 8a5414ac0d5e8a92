// Package respond writes the JSON envelope every endpoint answers with.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
)

// Error kinds carried in Envelope.Error so clients can branch without parsing messages.
const (
	KindConflict           = "conflict"
	KindInvalidCredentials = "invalid_credentials"
	KindTokenExpired       = "token_expired"
	KindUnauthorized       = "unauthorized"
	KindForbidden          = "forbidden"
	KindNotFound           = "not_found"
	KindInvalidInput       = "invalid_input"
	KindRateLimited        = "rate_limited"
	KindInternal           = "internal"
)

// Envelope wraps every response body. Error is set only on failures.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a successful response.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes a failure whose kind is derived from status.
func Error(w http.ResponseWriter, status int, message string) {
	Fail(w, status, kindFor(status), message, nil)
}

// Fail writes a failure with an explicit kind and optional details.
func Fail(w http.ResponseWriter, status int, kind, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Error: kind, Data: data})
}

// Decode reads a JSON request body into dst and rejects trailing data after it.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

const errTrailingData = decodeError("unexpected data after JSON body")

func kindFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindInvalidInput
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindInternal
	}
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L().Warn("encode response failed", zap.Int("status", status), zap.Error(err))
	}
}
