// File: internal/auth/jwt.go
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// DefaultTokenExpiry is used when TOKEN_EXPIRY is unset.
const DefaultTokenExpiry = 24 * time.Hour

// ErrInvalidToken is the only verification failure callers ever see.
// Malformed, expired and forged tokens are indistinguishable from outside.
var ErrInvalidToken = errors.New("invalid access token")

// Logger is used to record why a token was rejected.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Claims binds a chat to the widget user that created it.
type Claims struct {
	ChatID    string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies chat access tokens.
type TokenService struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
	logger Logger
}

// NewTokenService derives the HMAC key from secret. The raw secret is never
// used as a signing key directly.
func NewTokenService(secret string, expiry time.Duration, logger Logger) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret cannot be empty")
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("chat-access-token/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	return &TokenService{
		key:    key,
		expiry: expiry,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Issue signs a token for the chat/user pair.
func (s *TokenService) Issue(chatID, userID string) (string, error) {
	if chatID == "" || userID == "" {
		return "", errors.New("chat ID and user ID are required")
	}

	now := s.now()
	claims := accessClaims{
		ChatID: chatID,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify checks signature and expiry. Every failure collapses to
// ErrInvalidToken; the reason is only logged.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	if err != nil {
		s.logger.Warn("access token rejected", "reason", rejectReason(err))
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.ChatID == "" || claims.UserID == "" {
		s.logger.Warn("access token rejected", "reason", "missing_claims")
		return Claims{}, ErrInvalidToken
	}

	out := Claims{ChatID: claims.ChatID, UserID: claims.UserID}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// ExtractBearer parses "Bearer <token>". A missing header or another scheme
// reports false rather than an error.
func ExtractBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
