package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cvbuilder/api/internal/ids"
)

var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims identify a signed-in dashboard operator.
type OperatorClaims struct {
	Username string `json:"usr"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

const RoleOperator = "operator"

func GenerateOperatorToken(secret string, username string, ttl time.Duration, now time.Time) (string, *OperatorClaims, error) {
	if secret == "" {
		return "", nil, errors.New("operator jwt secret is empty")
	}

	claims := &OperatorClaims{
		Username: username,
		Role:     RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   username,
			ID:        ids.New(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, claims, nil
}

func ParseOperatorToken(tokenStr string, secret string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims, ok := token.Claims.(*OperatorClaims); ok && token.Valid && claims.Role == RoleOperator {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
