package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the payload carried in the signed session cookie.
type SessionClaims struct {
	AccountID int64  `json:"sub"`
	Role      string `json:"role"`
	Iat       int64  `json:"iat"`
	Exp       int64  `json:"exp"`
}

// SignSession produces a compact HMAC-SHA256 signed token: payload.signature,
// both base64url without padding.
func SignSession(claims SessionClaims, secret string) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + hmacSHA256(encoded, secret), nil
}

// VerifySession checks the signature and expiry and returns the claims.
func VerifySession(token, secret string) (*SessionClaims, error) {
	dot := -1
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			if dot >= 0 {
				return nil, ErrInvalidToken
			}
			dot = i
		}
	}
	if dot <= 0 || dot == len(token)-1 {
		return nil, ErrInvalidToken
	}
	encoded, sig := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(hmacSHA256(encoded, secret))) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
