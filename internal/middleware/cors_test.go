package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	t.Parallel()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantStatus  int
		wantOrigin  string
		wantCredent string
	}{
		{"explicit origin", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodPost, http.StatusTeapot, "http://localhost:3000", "true"},
		{"wildcard no credentials", []string{"*"}, "http://evil.test", http.MethodGet, http.StatusTeapot, "http://evil.test", ""},
		{"unknown origin", []string{"http://a.test"}, "http://b.test", http.MethodGet, http.StatusTeapot, "", ""},
		{"preflight", []string{"http://a.test"}, "http://a.test", http.MethodOptions, http.StatusOK, "http://a.test", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/v1/enhance", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredent {
				t.Errorf("allow-credentials = %q, want %q", got, tt.wantCredent)
			}
		})
	}
}
