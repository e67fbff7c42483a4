package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims is the token payload issued by the identity service.
type ActorClaims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type actorKey struct{}

func ActorFrom(ctx context.Context) (orders.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(orders.Actor)
	return a, ok
}

// Authenticate verifies HS256 bearer tokens and stores the actor on the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, r, apperr.Unauthenticated("missing bearer token"))
				return
			}
			actor, err := parseActor(raw, secret)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	}
}

func parseActor(raw string, secret []byte) (orders.Actor, error) {
	var claims ActorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return orders.Actor{}, apperr.Unauthenticated("invalid token: %v", err)
	}
	if claims.Subject == "" {
		return orders.Actor{}, apperr.Unauthenticated("token has no subject")
	}
	role := orders.Role(claims.Role)
	switch role {
	case orders.RoleCustomer, orders.RoleStaff, orders.RoleAdmin:
	default:
		return orders.Actor{}, apperr.Forbidden("unknown role %q", claims.Role)
	}
	return orders.Actor{ID: claims.Subject, Role: role, Name: claims.Name, Email: claims.Email}, nil
}

// SignActor issues a token for a; used by tooling and tests.
func SignActor(a orders.Actor, secret []byte, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = a.ID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, ActorClaims{
		Role:             string(a.Role),
		Name:             a.Name,
		Email:            a.Email,
		RegisteredClaims: claims,
	})
	return tok.SignedString(secret)
}
