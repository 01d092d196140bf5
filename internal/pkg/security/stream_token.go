package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSecret = errors.New("secret is required")
	ErrInvalidToken  = errors.New("invalid stream token")
	ErrTokenExpired  = errors.New("stream token expired")
)

// StreamClaims identify the caller of a live update stream. Browsers cannot
// attach gateway headers to an EventSource, so the stream authenticates with a
// short lived token in the query string instead.
type StreamClaims struct {
	UserID    string `json:"sub"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

func GenerateStreamToken(userID, role string, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	claims := StreamClaims{
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	token := fmt.Sprintf("%s.%s",
		base64.RawURLEncoding.EncodeToString(payload),
		base64.RawURLEncoding.EncodeToString(sign(payload, secret)))
	return token, nil
}

func VerifyStreamToken(token, secret string) (*StreamClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: format", ErrInvalidToken)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", ErrInvalidToken)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding", ErrInvalidToken)
	}
	if !hmac.Equal(sig, sign(payload, secret)) {
		return nil, fmt.Errorf("%w: signature", ErrInvalidToken)
	}
	var claims StreamClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims.UserID == "" {
		return nil, fmt.Errorf("%w: payload", ErrInvalidToken)
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
