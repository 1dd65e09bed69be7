package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "middleware-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	g := r.Group("/", JWTAuth(testSecret))
	g.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	g.POST("/issue", RequirePermission("mes:plan"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func claimsFor(uid string, perms ...string) JWTClaims {
	return JWTClaims{
		UserID:      uid,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTAuth(t *testing.T) {
	r := testRouter()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor("u1")), http.StatusOK},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), claimsFor("u1")), http.StatusUnauthorized},
		{"wrong method", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), claimsFor("u1")), http.StatusUnauthorized},
		{"no uid", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor("")), http.StatusUnauthorized},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), JWTClaims{
			UserID:           "u1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/me", tt.token)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Errorf("request id header missing")
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	r := testRouter()

	if w := serve(r, http.MethodPost, "/issue", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor("u1", "mes:view"))); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/issue", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor("u1", "mes:plan"))); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/issue", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor("u1", "*"))); w.Code != http.StatusNoContent {
		t.Errorf("wildcard: expected 204, got %d", w.Code)
	}
}
