package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CallerKey is the gin context key holding the authenticated crowdfund.Address.
const CallerKey = "caller"

// AuthMiddleware authenticates the caller from an HS256 bearer token whose
// subject is the caller's address.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abort(c, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			abort(c, fmt.Sprintf("invalid token: %v", err))
			return
		}
		if claims.Subject == "" {
			abort(c, "token has no subject")
			return
		}

		c.Set(CallerKey, crowdfund.Address(claims.Subject))
		c.Next()
	}
}

// Caller returns the address set by AuthMiddleware.
func Caller(c *gin.Context) (crowdfund.Address, error) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return "", errors.New("caller not authenticated")
	}
	addr, ok := v.(crowdfund.Address)
	if !ok || addr == "" {
		return "", errors.New("caller not authenticated")
	}
	return addr, nil
}

// IssueToken signs a token for subject valid for ttl.
func IssueToken(cfg config.AuthConfig, subject crowdfund.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   string(subject),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
		"data":    nil,
	})
}
