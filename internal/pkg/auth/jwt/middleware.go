package jwt

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"wnschat/internal/pkg/errs"
	"wnschat/internal/pkg/resp"
)

type contextKey string

// ContextAuthPayloadKey is the key used to store the parsed Payload in the request Context.
const ContextAuthPayloadKey contextKey = "auth_payload"

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireOperator rejects requests without a valid operator token with 401 Unauthorized.
// On success the Payload is stored in the request Context.
func RequireOperator(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			payload, err := ParseToken(tokenString, secretKey)
			if err != nil || payload.Role != RoleOperator {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Rejected operator token")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPayloadFromContext extracts the authenticated Payload from the request Context, or nil.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}
	return payload
}
