package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-orchestrator/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func operatorClaims(now time.Time, iss, aud string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-1",
			Issuer:    iss,
			Audience:  jwt.ClaimStrings{aud},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role: "operator",
	}
}

func TestVerifyOperatorToken(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "crm", JWTAudience: "voice"})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	tok := sign(t, "secret", operatorClaims(now, "crm", "voice"))

	claims, err := v.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "op-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "crm", JWTAudience: "voice"})
	now := time.Unix(1700000000, 0).UTC()

	noRole := operatorClaims(now, "crm", "voice")
	noRole.Role = ""

	cases := map[string]string{
		"wrong secret":   sign(t, "other", operatorClaims(now, "crm", "voice")),
		"wrong issuer":   sign(t, "secret", operatorClaims(now, "someone", "voice")),
		"wrong audience": sign(t, "secret", operatorClaims(now, "crm", "billing")),
		"missing role":   sign(t, "secret", noRole),
		"garbage":        "not-a-jwt",
	}
	for name, tok := range cases {
		if _, err := v.Verify(tok, now); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := v.Verify(sign(t, "secret", operatorClaims(now, "crm", "voice")), now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(config.AuthConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, _ := NewVerifier(config.AuthConfig{JWTSecret: "secret"})

	r := gin.New()
	r.GET("/me", RequireAccessToken(v), func(c *gin.Context) {
		id, _ := OperatorID(c.Request.Context())
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	tok := sign(t, "secret", operatorClaims(time.Now(), "", ""))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "op-1" {
		t.Fatalf("expected 200 op-1, got %d %q", w.Code, w.Body.String())
	}
}
