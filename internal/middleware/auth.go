package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/security"
)

const operatorClaimsKey = "operator_claims"

// DevOperator is the username attached to tokenless requests in permissive mode.
const DevOperator = "local-dev"

type TokenVerifier interface {
	Verify(token string) (*security.OperatorClaims, error)
}

type OperatorAuthConfig struct {
	CookieName string
	// Permissive lets requests without a token through as the development
	// operator. A presented but invalid token is still rejected.
	Permissive bool
}

// OperatorAuth guards dashboard routes. The token is read from the operator
// cookie first and then from an Authorization bearer header.
func OperatorAuth(verifier TokenVerifier, cfg OperatorAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := operatorToken(c, cfg.CookieName)
		if tokenStr == "" {
			if cfg.Permissive {
				c.Set(operatorClaimsKey, &security.OperatorClaims{Username: DevOperator, Role: security.RoleOperator})
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing_token"})
			return
		}

		claims, err := verifier.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid_token"})
			return
		}

		c.Set(operatorClaimsKey, claims)
		c.Next()
	}
}

// Operator returns the claims OperatorAuth attached to the request.
func Operator(c *gin.Context) (*security.OperatorClaims, bool) {
	v, ok := c.Get(operatorClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.OperatorClaims)
	return claims, ok && claims != nil
}

func operatorToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			return cookie
		}
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
