package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInaccessible reports that a job is gone or belongs to someone else (403/404).
var ErrInaccessible = errors.New("job inaccessible")

// ErrInvalidRequest wraps submission validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Error kinds reported by ErrorKind.
const (
	KindTransient    = "transient"
	KindInaccessible = "inaccessible"
	KindValidation   = "validation"
	KindRejected     = "rejected"
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrInaccessible) match 403 and 404 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrInaccessible && (e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusNotFound)
}

// ActionError is a 2xx response whose body reported failure ({"ok": false}).
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request was not accepted"
	}
	return fmt.Sprintf("%s: %s", e.Action, msg)
}

// ErrorKind classifies err for retry decisions.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInaccessible):
		return KindInaccessible
	case errors.Is(err, ErrInvalidRequest):
		return KindValidation
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return KindRejected
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
		httpErr.StatusCode != http.StatusTooManyRequests && httpErr.StatusCode != http.StatusRequestTimeout {
		return KindRejected
	}
	return KindTransient
}

// UserMessage extracts the text worth showing on a tile for err.
func UserMessage(err error) string {
	var actionErr *ActionError
	if errors.As(err, &actionErr) && strings.TrimSpace(actionErr.Message) != "" {
		return strings.TrimSpace(actionErr.Message)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && strings.TrimSpace(httpErr.Message) != "" {
		return strings.TrimSpace(httpErr.Message)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
