package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKeyUserID is the gin context key holding the authenticated user id.
	ContextKeyUserID = "user_id"
)

// Claims are the JWT claims carried by an access token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthConfig holds JWT authentication settings.
type AuthConfig struct {
	SecretKey      string
	ExpiryDuration time.Duration
	Issuer         string
	SkipPaths      []string
}

// DefaultAuthConfig returns the default authentication configuration.
// Public market-data endpoints are readable without a token.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		SecretKey:      "change-me-in-production",
		ExpiryDuration: 24 * time.Hour,
		Issuer:         "matchbook",
		SkipPaths: []string{
			"/health",
			"/ready",
			"/metrics",
			"/api/currencies",
			"/api/pairs",
		},
	}
}

// Auth validates JWT bearer tokens and places the user id in the
// request context. Account ownership itself is managed elsewhere; this
// layer only verifies that a caller presents a valid token.
type Auth struct {
	config *AuthConfig
}

// NewAuth creates the authentication middleware.
func NewAuth(config *AuthConfig) *Auth {
	if config == nil {
		config = DefaultAuthConfig()
	}
	return &Auth{config: config}
}

// Middleware returns the gin handler enforcing authentication.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip paths are public market data; only reads bypass auth.
		if c.Request.Method == http.MethodGet {
			path := c.Request.URL.Path
			for _, skip := range a.config.SkipPaths {
				if path == skip || strings.HasPrefix(path, skip+"/") {
					c.Next()
					return
				}
			}
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or malformed authorization header",
			})
			return
		}

		claims, err := a.validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

func (a *Auth) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if a.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != a.config.Issuer {
			return nil, errors.New("invalid token issuer")
		}
	}
	return claims, nil
}

// GenerateToken signs a new access token for a user.
func (a *Auth) GenerateToken(userID int64, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.ExpiryDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.config.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.SecretKey))
}

// GetUserID extracts the authenticated user id from the gin context.
func GetUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
