package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/common"
)

const secret = "kasir-test-secret"

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func sign(t *testing.T, subject, issuer string, exp time.Time, alg jwa.SignatureAlgorithm, key any) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"kasir"}).
		Subject(subject).
		IssuedAt(now.Add(-time.Minute)).
		NotBefore(now.Add(-time.Minute)).
		Expiration(exp).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
	require.NoError(t, err)
	return string(signed)
}

func verifier() *auth.Verifier {
	return auth.NewVerifier(secret, auth.TokenValidator{Issuer: "toko-id", Audience: "kasir", ClockSkew: time.Second}).
		WithClock(func() time.Time { return now })
}

func TestParseAccessToken(t *testing.T) {
	user := uuid.New()
	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", sign(t, user.String(), "toko-id", now.Add(time.Hour), jwa.HS256, []byte(secret)), true},
		{"expired", sign(t, user.String(), "toko-id", now.Add(-time.Minute), jwa.HS256, []byte(secret)), false},
		{"wrong issuer", sign(t, user.String(), "other", now.Add(time.Hour), jwa.HS256, []byte(secret)), false},
		{"wrong key", sign(t, user.String(), "toko-id", now.Add(time.Hour), jwa.HS256, []byte("other")), false},
		{"wrong algorithm", sign(t, user.String(), "toko-id", now.Add(time.Hour), jwa.HS512, []byte(secret)), false},
		{"subject not uuid", sign(t, "cashier-7", "toko-id", now.Add(time.Hour), jwa.HS256, []byte(secret)), false},
		{"garbage", "not-a-token", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := verifier().ParseAccessToken(tc.token)
			if !tc.ok {
				require.Error(t, err)
				require.True(t, common.IsAppError(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, user, got)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	user := uuid.New()
	var seen string
	handler := auth.Middleware{Verifier: verifier()}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, user.String(), "toko-id", now.Add(time.Hour), jwa.HS256, []byte(secret)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, user.String(), seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}
