package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   abc.def.ghi", "abc.def.ghi", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc.def.ghi", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := bearerToken(tc.header)
		require.Equal(t, tc.ok, ok, "header %q", tc.header)
		require.Equal(t, tc.token, token, "header %q", tc.header)
	}
}

func protectedRouter(role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/whoami",
		DeviceAuth("secret", "attendance-engine"),
		RequireRole(role),
		func(c *gin.Context) {
			claims, ok := FromContext(c)
			if !ok {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "no claims"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"device": claims.Subject, "role": claims.Role})
		})
	return r
}

func whoami(t *testing.T, r *gin.Engine, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceAuthAcceptsValidToken(t *testing.T) {
	pair, err := Issue("device-1", "student", "attendance-engine", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	w := whoami(t, protectedRouter("student"), "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "device-1")
}

func TestDeviceAuthRejectsMissingAndBadTokens(t *testing.T) {
	r := protectedRouter("student")

	require.Equal(t, http.StatusUnauthorized, whoami(t, r, "").Code)
	require.Equal(t, http.StatusUnauthorized, whoami(t, r, "Bearer not-a-token").Code)

	pair, err := Issue("device-1", "student", "attendance-engine", "other-secret", time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, whoami(t, r, "Bearer "+pair.AccessToken).Code)
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	pair, err := Issue("device-1", "student", "attendance-engine", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	w := whoami(t, protectedRouter("instructor"), "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)
}
