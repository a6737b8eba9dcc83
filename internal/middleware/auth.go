package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/animo-app/animo/backend/pkg/utils"
)

var (
	// ErrUnauthenticated is returned by ResolveUser when no user is on the context.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden is returned by ResolveUser when the caller names another user.
	ErrForbidden = errors.New("cannot act on behalf of another user")
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type userIDKey struct{}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// ResolveUser returns the authenticated user id. claimed may be empty or
// must equal that id.
func ResolveUser(ctx context.Context, claimed string) (string, error) {
	userID, ok := UserID(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	if claimed != "" && claimed != userID {
		return "", ErrForbidden
	}
	return userID, nil
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
