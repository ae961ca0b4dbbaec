// Package apperr holds the error taxonomy shared by the HTTP surface and the
// realtime connection layer. Match with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingToken = errors.New("missing jwt token")
	ErrInvalidToken = errors.New("invalid jwt token")
	ErrForbidden    = errors.New("user is not eligible to access this method")
	ErrInternal     = errors.New("internal error")
)

type WrongCredentials struct {
	Msg string
}

func (e *WrongCredentials) Error() string {
	if e.Msg == "" {
		return "wrong credentials provided"
	}
	return e.Msg
}

// InvalidInput is a request payload that fails validation.
type InvalidInput struct {
	Msg string
}

func (e *InvalidInput) Error() string {
	return e.Msg
}

type AlreadyExists struct {
	Type string
	Data string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s %s already exists.", e.Type, e.Data)
}

type DoesNotExist struct {
	Type string
	Data string
}

func (e *DoesNotExist) Error() string {
	return fmt.Sprintf("%s %s does not exist.", e.Type, e.Data)
}

// Backend names the store a StoreError came from.
type Backend string

const (
	BackendDB    Backend = "db"
	BackendRedis Backend = "redis"
)

// StoreError is a transport or query failure of the durable store or the
// cache. Its detail is logged, never shown to clients.
type StoreError struct {
	Backend Backend
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("error occurred with %s: %v", e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func DB(err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: BackendDB, Err: err}
}

func Redis(err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: BackendRedis, Err: err}
}

// IsNotFound reports whether err is a DoesNotExist.
func IsNotFound(err error) bool {
	var dne *DoesNotExist
	return errors.As(err, &dne)
}

// Body is the JSON error envelope: {"error": {"msg": ..., ...}}.
type Body struct {
	Error map[string]string `json:"error"`
}

// Status maps err to an HTTP status and a client-safe body. The second return
// reports whether err carries detail that must only be logged server-side.
func Status(err error) (int, Body, bool) {
	var (
		wc  *WrongCredentials
		ii  *InvalidInput
		ae  *AlreadyExists
		dne *DoesNotExist
		se  *StoreError
	)

	switch {
	case errors.As(err, &wc):
		return http.StatusUnauthorized, body("msg", wc.Error()), false
	case errors.As(err, &ii):
		return http.StatusBadRequest, body("msg", ii.Error()), false
	case errors.As(err, &dne):
		return http.StatusNotFound, body("msg", dne.Error()), false
	case errors.As(err, &ae):
		return http.StatusConflict, body("msg", ae.Error()), false
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, body("msg", ErrForbidden.Error()), false
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, body("msg", ErrMissingToken.Error(), "token", "missing"), false
	case errors.Is(err, ErrInvalidToken):
		return http.StatusBadRequest, body("msg", ErrInvalidToken.Error(), "token", "invalid"), false
	case errors.As(err, &se):
		return http.StatusInternalServerError, body("msg", "Server encountered some error.", "server", string(se.Backend)), true
	default:
		return http.StatusInternalServerError, body("msg", "Server encountered some error.", "server", "unknown"), true
	}
}

func body(kv ...string) Body {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return Body{Error: m}
}
