package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"plainchat/internal/apperr"
	"plainchat/internal/auth"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

// writeError maps err onto the JSON error envelope. Store and unclassified
// failures are logged in full and reach the client only as an opaque body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, internal := apperr.Status(err)
	if internal {
		logger.L().Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		logger.L().Debug("request rejected",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &apperr.InvalidInput{Msg: "invalid request body"}
	}
	return nil
}

// credential returns the bearer credential as presented, including the
// scheme. Browsers cannot set headers on a websocket handshake, so a bare
// token query parameter is accepted as well.
func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	if t := r.URL.Query().Get("token"); t != "" {
		if strings.HasPrefix(t, auth.Scheme) {
			return t
		}
		return auth.Scheme + t
	}
	return ""
}

type userKey struct{}

// RequireUser authenticates the request and stores the caller's id in the
// request context.
func RequireUser(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
		})
	}
}

func userID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userKey{}).(uuid.UUID)
	return id
}

// groupID parses a path id. Anything that is not a uuid names no group.
func groupID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &apperr.DoesNotExist{Type: "Group", Data: raw}
	}
	return id, nil
}
