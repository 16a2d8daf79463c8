package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(now time.Time) *Issuer {
	i := NewIssuer("venueattend", "test-key", 15*time.Minute, 24*time.Hour)
	i.Now = func() time.Time { return now }
	return i
}

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	i := newIssuer(now)

	pair, err := i.Issue("kiosk-7", RoleKiosk, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), pair.AccessExp)

	claims, err := i.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-7", claims.Subject)
	assert.Equal(t, RoleKiosk, claims.Role)
	assert.Equal(t, "loc-1", claims.LocationID)
}

func TestParseRejectsRefreshTokenAsAccess(t *testing.T) {
	i := newIssuer(time.Now())
	pair, err := i.Issue("kiosk-7", RoleKiosk, "")
	require.NoError(t, err)

	_, err = i.Parse(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Now()
	i := newIssuer(now)
	pair, err := i.Issue("kiosk-7", RoleKiosk, "")
	require.NoError(t, err)

	later := newIssuer(now.Add(time.Hour))
	_, err = later.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewIssuer("someone-else", "test-key", time.Minute, time.Minute)
	_, err = other.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey := NewIssuer("venueattend", "other-key", time.Minute, time.Minute)
	_, err = wrongKey.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshKeepsIdentity(t *testing.T) {
	i := newIssuer(time.Now())
	pair, err := i.Issue("admin", RoleAdmin, "")
	require.NoError(t, err)

	next, err := i.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := i.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = i.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	i := newIssuer(time.Now())
	kiosk, err := i.Issue("kiosk-1", RoleKiosk, "loc-1")
	require.NoError(t, err)
	admin, err := i.Issue("admin", RoleAdmin, "")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", RequireRole(i, RoleAdmin), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + kiosk.AccessToken, http.StatusForbidden},
		{"admin", "Bearer " + admin.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestValidAPIKey(t *testing.T) {
	assert.True(t, ValidAPIKey("s3cret", "s3cret"))
	assert.False(t, ValidAPIKey("s3cret", "s3cre"))
	assert.False(t, ValidAPIKey("", ""))
}
