package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driver/myhttp/handle"
)

type AuthMiddleware struct {
	accessSecret string
}

func NewAuthMiddleware(accessSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		accessSecret: accessSecret,
	}
}

// Wrap checks the bearer token and passes the caller's id and role
// down in headers. An empty roles list admits any authenticated user.
func (am *AuthMiddleware) Wrap(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Empty JWT-Token"))
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				return []byte(am.accessSecret), nil
			})
			if err != nil {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Failed to parse JWT-Token"))
				return
			}

			if !token.Valid {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid JWT-Token"))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid claims"))
				return
			}

			userId, ok := claims["user_id"].(string)
			if !ok {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("User id not found in token"))
				return
			}

			role, ok := claims["role"].(string)
			if !ok {
				handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Role not found in token"))
				return
			}

			if len(roles) > 0 && !contains(roles, role) {
				handle.JsonError(w, http.StatusForbidden, fmt.Errorf("Role %s is not allowed here", role))
				return
			}

			r.Header.Set("X-UserId", userId)
			r.Header.Set("X-Role", role)

			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
