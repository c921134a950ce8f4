package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mural/mural-api/internal/pkg/jwt"
)

func protectedHandler(t *testing.T, allowed Allowlist, jwtSvc *jwt.Service) http.Handler {
	t.Helper()
	return RequireIdentity(jwtSvc, allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetEmail(r.Context()) != "owner@example.com" {
			t.Errorf("email not propagated: %q", GetEmail(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireIdentityAllowsListedEmail(t *testing.T) {
	jwtSvc := jwt.NewService("secret", "")
	token, err := jwtSvc.GenerateToken("user_1", "Owner@Example.com", time.Minute)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/images", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protectedHandler(t, NewAllowlist([]string{" owner@example.com "}), jwtSvc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireIdentityRejects(t *testing.T) {
	jwtSvc := jwt.NewService("secret", "")
	allowed := NewAllowlist([]string{"owner@example.com"})

	stranger, _ := jwtSvc.GenerateToken("user_2", "stranger@example.com", time.Minute)
	expired, _ := jwtSvc.GenerateToken("user_1", "owner@example.com", -time.Minute)
	forged, _ := jwt.NewService("other-secret", "").GenerateToken("user_1", "owner@example.com", time.Minute)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong signature", "Bearer " + forged, http.StatusUnauthorized},
		{"not allow-listed", "Bearer " + stranger, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/images/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			protectedHandler(t, allowed, jwtSvc).ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestEmptyAllowlistDeniesEveryone(t *testing.T) {
	if NewAllowlist(nil).Allows("owner@example.com") {
		t.Fatal("empty allow-list must deny")
	}
	if NewAllowlist([]string{"", "  "}).Allows("") {
		t.Fatal("blank entries must be ignored")
	}
}
