package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"scheduling-service/internal/apperror"
)

const (
	hostIDKey    = "hostID"
	subjectKey   = "subject"
	hostIDHeader = "X-Host-ID"
	stateAud     = "calendar-connect"
)

// AuthMiddleware accepts an HS256 JWT, whose subject is resolved to a host
// later by ResolveHost, or one of the static tokens together with an
// X-Host-ID header naming the host directly.
func AuthMiddleware(jwtSecret []byte, staticTokens []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		// JWT path
		if len(jwtSecret) > 0 {
			if sub, err := parseSubject(jwtSecret, tokenStr, ""); err == nil {
				c.Set(subjectKey, sub)
				c.Next()
				return
			}
		}

		// static tokens
		for _, t := range staticTokens {
			if tokenStr == t {
				hostID := strings.TrimSpace(c.GetHeader(hostIDHeader))
				if hostID == "" {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": hostIDHeader + " header required"})
					return
				}
				c.Set(hostIDKey, hostID)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

// ResolveHost maps a token subject to a host: first as an external identity
// id, then as a host id.
func ResolveHost(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.GetString(subjectKey)
		if sub == "" || HostID(c) != "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		host, err := store.HostByExternalID(ctx, sub)
		if errors.Is(err, apperror.ErrNotFound) {
			host, err = store.HostByID(ctx, sub)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown host"})
			return
		}
		c.Set(hostIDKey, host.ID)
		c.Next()
	}
}

// HostID returns the authenticated host, empty on public routes.
func HostID(c *gin.Context) string {
	return c.GetString(hostIDKey)
}

// IssueToken mints a bearer token for subject, a host id or external
// identity id.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	return sign(secret, subject, "", ttl)
}

// SignState binds an OAuth round trip to the host that started it.
func SignState(secret []byte, hostID string) (string, error) {
	return sign(secret, hostID, stateAud, 10*time.Minute)
}

func VerifyState(secret []byte, state string) (string, error) {
	return parseSubject(secret, state, stateAud)
}

func sign(secret []byte, subject, audience string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("JWT_HMAC_SECRET is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseSubject validates tokenStr and returns its subject. An empty audience
// rejects tokens that carry one, so OAuth state cannot be replayed as a
// bearer token.
func parseSubject(secret []byte, tokenStr, audience string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(5 * time.Second), jwt.WithExpirationRequired()}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if audience == "" && len(claims.Audience) > 0 {
		return "", jwt.ErrTokenInvalidAudience
	}
	if claims.Subject == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return claims.Subject, nil
}
