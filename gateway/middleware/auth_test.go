package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("gateway-test-secret")

func mintToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func adminClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "lend1admin",
		"scope": "market:admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func guardedHandler(t *testing.T, cfg AuthConfig, scopes ...string) (http.Handler, *Principal) {
	t.Helper()
	captured := &Principal{}
	auth := NewAuthenticator(cfg, nil)
	handler := auth.Middleware(scopes...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, ok := PrincipalFromContext(r.Context()); ok {
			*captured = principal
		}
		w.WriteHeader(http.StatusOK)
	}))
	return handler, captured
}

func serve(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/halt", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAuthRejectsWhenSecretUnset(t *testing.T) {
	handler, _ := guardedHandler(t, AuthConfig{}, "market:admin")
	res := serve(handler, mintToken(t, testSecret, adminClaims()))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without configured secret, got %d", res.Code)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "missing bearer token") {
		t.Fatalf("unexpected body: %q", res.Body.String())
	}
}

func TestAuthRejectsBadSignature(t *testing.T) {
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, mintToken(t, []byte("other-secret"), adminClaims()))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", res.Code)
	}
}

func TestAuthRejectsUnsignedToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, adminClaims())
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, signed)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for alg=none token, got %d", res.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	claims := adminClaims()
	claims["exp"] = time.Now().Add(-10 * time.Minute).Unix()
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", res.Code)
	}
}

func TestAuthAllowsExpiryWithinLeeway(t *testing.T) {
	claims := adminClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	cfg := AuthConfig{Secret: testSecret, ClockSkew: 5 * time.Minute}
	handler, _ := guardedHandler(t, cfg, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusOK {
		t.Fatalf("expected leeway to admit token, got %d", res.Code)
	}
}

func TestAuthRejectsIssuerMismatch(t *testing.T) {
	claims := adminClaims()
	claims["iss"] = "someone-else"
	cfg := AuthConfig{Secret: testSecret, Issuer: "lendcore"}
	handler, _ := guardedHandler(t, cfg, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for issuer mismatch, got %d", res.Code)
	}
}

func TestAuthValidatesAudienceList(t *testing.T) {
	claims := adminClaims()
	claims["aud"] = []string{"other", "lend-gateway"}
	cfg := AuthConfig{Secret: testSecret, Audience: "lend-gateway"}
	handler, _ := guardedHandler(t, cfg, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusOK {
		t.Fatalf("expected audience list to match, got %d", res.Code)
	}
}

func TestAuthRejectsInsufficientScope(t *testing.T) {
	claims := adminClaims()
	claims["scope"] = "market:read"
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing scope, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "insufficient scope") {
		t.Fatalf("unexpected body: %q", res.Body.String())
	}
}

func TestAuthExposesPrincipal(t *testing.T) {
	claims := adminClaims()
	claims["scope"] = "market:admin market:read"
	handler, captured := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", res.Code)
	}
	if captured.Subject != "lend1admin" {
		t.Fatalf("expected subject from sub claim, got %q", captured.Subject)
	}
	if len(captured.Scopes) != 2 {
		t.Fatalf("expected both scopes, got %v", captured.Scopes)
	}
}

func TestAuthReadsScopesFromArrayClaim(t *testing.T) {
	claims := adminClaims()
	claims["scope"] = []string{"market:admin"}
	handler, _ := guardedHandler(t, AuthConfig{Secret: testSecret}, "market:admin")
	res := serve(handler, mintToken(t, testSecret, claims))
	if res.Code != http.StatusOK {
		t.Fatalf("expected array scope claim to pass, got %d", res.Code)
	}
}
