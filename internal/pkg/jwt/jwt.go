package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultSecret = "mocktalk-realtime-secret-change-me"

var secret = []byte(defaultSecret)

var ErrInvalidSubject = errors.New("token subject is not a user id")

// SetSecret configures the JWT signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

// Claims is the JWT payload issued by the account service.
type Claims struct {
	UserID string `json:"uid"`
	jwtlib.RegisteredClaims
}

// NumericUserID returns the user id as int64. Falls back to the
// registered subject when uid is absent.
func (c *Claims) NumericUserID() (int64, error) {
	raw := strings.TrimSpace(c.UserID)
	if raw == "" {
		raw = strings.TrimSpace(c.Subject)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidSubject
	}
	return id, nil
}

// Sign creates a signed JWT token for the given user ID.
func Sign(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: strconv.FormatInt(userID, 10),
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates a token string and returns the claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
