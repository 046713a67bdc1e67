package auth

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/akozma/mailcore/internal/models"
)

type contextKey string

// ClientKey is the context key under which the authenticated tenant client
// is stored.
const ClientKey contextKey = "client"

// ClientResolver maps an API token to the tenant client it belongs to.
type ClientResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.Client, error)
}

// RequireAuth checks for a valid bearer token in the Authorization header,
// resolves the tenant client it belongs to, and stores it in the request
// context for downstream handlers. Returns 401 Unauthorized on failure.
func RequireAuth(resolver ClientResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			log.Println("Auth: missing or malformed Authorization header")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		client, err := resolver.ResolveToken(r.Context(), token)
		if err != nil {
			log.Printf("Auth: token resolution failed: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClientKey, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an Authorization header value. The
// Bearer scheme is matched case-insensitively per RFC 7235.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	if token == "" {
		return "", false
	}
	return token, true
}

// ClientFromContext returns the authenticated client from the context.
func ClientFromContext(ctx context.Context) (*models.Client, bool) {
	client, ok := ctx.Value(ClientKey).(*models.Client)
	return client, ok
}
