// Package middleware verifies gateway service tokens. The arena trusts the
// calling gateway to have authenticated the agent; the token carries the
// agent's participant id as a claim.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const claimsContextKey contextKey = "arena_claims"

const jwtClaimParticipantID = "participant_id"

// Authenticate validates the Bearer token with the shared HS256 secret and
// stores its claims on the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetParticipantIDFromContext extracts the authenticated participant id set
// by Authenticate.
func GetParticipantIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("claims not found in context or invalid type")
	}

	idClaim, ok := claims[jwtClaimParticipantID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimParticipantID)
	}

	id, ok := idClaim.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("invalid '%s' claim: expected non-empty string, got %T", jwtClaimParticipantID, idClaim)
	}
	return id, nil
}
