package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim on minted endpoint tokens.
const TokenIssuer = "hooksmith"

// tokenTTL bounds how long a minted bearer token stays valid. Endpoints
// verifying exp get replay protection roughly matching the HMAC timestamp
// leeway.
const tokenTTL = 5 * time.Minute

// SignHMAC computes the hex sha256 HMAC over body||timestamp with the
// webhook's shared secret. The result goes into the signature header as
// "sha256=<hex>".
func SignHMAC(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex signature against the expected HMAC in constant
// time. Used by receivers (and the fake receiver) to authenticate requests.
func VerifyHMAC(secret string, body []byte, timestamp, signature string) bool {
	expected := SignHMAC(secret, body, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MintToken issues an HS256 bearer token for webhooks configured with jwt
// auth. The subject identifies the webhook so endpoints can key verification
// per subscription.
func MintToken(secret, webhookID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   webhookID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken parses and validates a minted token, returning the webhook ID
// from the subject claim.
func VerifyToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return claims.Subject, nil
}
