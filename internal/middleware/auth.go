package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"web-app-firewall-console/pkg/response"
)

// SessionCookie carries the signed session token.
const SessionCookie = "auth_token"

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 24 * time.Hour

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
	// EmailKey is the context key for email
	EmailKey contextKey = "email"
)

var errMissingUser = errors.New("token has no user_id claim")

// IssueToken signs a session token for the user.
func IssueToken(secret []byte, userID, email string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     now.Add(SessionTTL).Unix(),
	})
	return token.SignedString(secret)
}

// ParseToken validates raw against secret and returns its user id and email.
func ParseToken(secret []byte, raw string) (userID, email string, err error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errMissingUser
	}
	userID, ok = claims["user_id"].(string)
	if !ok || userID == "" {
		return "", "", errMissingUser
	}
	email, _ = claims["email"].(string)
	return userID, email, nil
}

// Auth rejects requests without a valid session cookie and puts the user id
// and email on the request context.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				response.Unauthorized(w, "Unauthorized: No session cookie")
				return
			}

			userID, email, err := ParseToken(secret, cookie.Value)
			if err != nil {
				response.Unauthorized(w, "Unauthorized: Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, EmailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves user ID from request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserIDKey).(string)
	return userID, ok
}

// GetEmail retrieves email from request context
func GetEmail(r *http.Request) (string, bool) {
	email, ok := r.Context().Value(EmailKey).(string)
	return email, ok
}
