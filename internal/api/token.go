package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const writeScope = "write"

// MintWriteToken issues a signed bearer token accepted by the mutating
// API routes. Build tooling calls this through the `assetgate token`
// command rather than handling the secret directly.
func MintWriteToken(secret, issuer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("write secret not configured")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"scope": writeScope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign write token: %w", err)
	}
	return signed, nil
}

func verifyWriteToken(secret, issuer, raw string) error {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["scope"] != writeScope {
		return errors.New("token missing write scope")
	}
	return nil
}
