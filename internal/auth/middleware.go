package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// claimsKey is the gin context key DeviceAuth stores verified claims under.
const claimsKey = "device_claims"

// DeviceAuth verifies the bearer token on each request and stashes the
// device claims in the request context for later handlers.
func DeviceAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := Parse(token, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects authenticated devices whose token carries a different
// role. It must run after DeviceAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := FromContext(c)
		if !ok || claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "device role not allowed"})
			return
		}
		c.Next()
	}
}

// FromContext returns the claims DeviceAuth stored for this request.
func FromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// bearerToken extracts the token from an Authorization header. The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
