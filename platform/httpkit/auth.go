package httpkit

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"outreach_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextSubjectKey is the gin context key for the authenticated subject.
	ContextSubjectKey = "subject"
	// ContextRolesKey is the gin context key for the operator's roles.
	ContextRolesKey = "roles"

	// RoleAdmin grants access to the admin API.
	RoleAdmin = "admin"

	tokenTypeAccess = "access"
	tokenIssuer     = "outreach"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

var errInvalid = errors.New(errInvalidToken)

// accessClaims is the payload of an operator token.
type accessClaims struct {
	Type  string   `json:"type"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AuthRequired validates HS256 operator tokens signed with secret. The
// token query parameter is accepted for EventSource clients, which cannot
// set headers. An empty secret rejects every request.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			raw = c.Query("token")
		}
		if raw == "" {
			abortUnauthorized(c, errMissingToken)
			return
		}

		claims, err := parseAccessToken(raw, secret)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		c.Set(ContextSubjectKey, claims.Subject)
		c.Set(ContextRolesKey, claims.Roles)
		c.Next()
	}
}

// RequireRole rejects authenticated operators that lack role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// IssueToken signs an operator token. A negative ttl yields an expired token.
func IssueToken(secret, subject string, roles []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := accessClaims{
		Type:  tokenTypeAccess,
		Roles: slices.Clone(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseAccessToken(raw, secret string) (*accessClaims, error) {
	if secret == "" {
		return nil, errInvalid
	}
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, errInvalid
	}
	if claims.Type != tokenTypeAccess || strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalid
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	HandleError(c, apperr.Unauthorized(message))
	c.Abort()
}
