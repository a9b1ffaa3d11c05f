package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the JWT token payload presented at the WebSocket handshake.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
}

const (
	tokenTypeAccess = "access"
	issuer          = "boardcast"
)

// Credential failures. Each maps to one handshake rejection reason.
var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrExpiredCredential = errors.New("auth: expired credential")
	ErrUserNotFound      = errors.New("auth: user not found")
)

// IssueAccessToken creates a signed JWT access token. Used by development
// tooling and tests; end-user credentials are issued by the account service.
func IssueAccessToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		UserID:    userID.String(),
		TokenType: tokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueAccessToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string and returns the user
// ID it carries. Expired tokens yield ErrExpiredCredential, everything else
// that fails verification yields ErrInvalidCredential.
func ValidateToken(secret, tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("auth.ValidateToken: %w", ErrMissingCredential)
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return uuid.Nil, fmt.Errorf("auth.ValidateToken: %w", ErrExpiredCredential)
	}
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidCredential)
	}

	if claims.TokenType != "" && claims.TokenType != tokenTypeAccess {
		return uuid.Nil, fmt.Errorf("auth.ValidateToken: token type %q: %w", claims.TokenType, ErrInvalidCredential)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidCredential)
	}

	return userID, nil
}
