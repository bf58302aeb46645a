package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

const chainOrigin = "http://localhost:3000"

// newAuthenticatedChain はルーターの認証済みルートと同じ順序でミドルウェアを組み立てる。
//
//	Recovery → SecurityHeaders → CORS → OptionalSession → Session → CSRF
func newAuthenticatedChain(finder SessionFinder, counter *panicCounter, next http.Handler) http.Handler {
	h := NewCSRFMiddleware(CSRFConfig{})(next)
	h = NewSessionMiddleware(finder)(h)
	h = NewOptionalSessionMiddleware(finder)(h)
	h = NewCORSMiddleware([]string{chainOrigin})(h)
	h = NewSecurityHeadersMiddleware(SecurityHeadersConfig{PublicPrefix: "/storage/"})(h)
	return NewRecoveryMiddleware(nil, counter)(h)
}

func chainSessions(lookups *int) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			*lookups++
			if id != "alice-session" {
				return nil, nil
			}
			return &model.Session{
				ID:        id,
				UserID:    "user-alice",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
}

func newChainRequest(method, target string, csrfCookie, csrfHeader string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Origin", chainOrigin)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "alice-session"})
	if csrfCookie != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrfCookie})
	}
	if csrfHeader != "" {
		req.Header.Set(csrfHeaderName, csrfHeader)
	}
	return req
}

// TestChain_DeleteRecord_WithValidCSRF は認証済みの削除リクエストがユーザーIDを伴ってハンドラーに届くことを検証する。
func TestChain_DeleteRecord_WithValidCSRF(t *testing.T) {
	var lookups int
	var gotUserID, gotSessionID string
	handler := newAuthenticatedChain(chainSessions(&lookups), &panicCounter{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		gotSessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newChainRequest(http.MethodDelete, "/api/records/r1", "tok", "tok"))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotUserID != "user-alice" || gotSessionID != "alice-session" {
		t.Errorf("context = (%q, %q), want (user-alice, alice-session)", gotUserID, gotSessionID)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != chainOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, chainOrigin)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-store")
	}
}

// TestChain_CSRFMismatch_Returns403WithHeaders はCSRF検証失敗でもセキュリティヘッダーとCORSヘッダーが付くことを検証する。
func TestChain_CSRFMismatch_Returns403WithHeaders(t *testing.T) {
	tests := []struct {
		name       string
		csrfCookie string
		csrfHeader string
	}{
		{"missing both", "", ""},
		{"missing header", "tok", ""},
		{"mismatch", "tok", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lookups int
			handler := newAuthenticatedChain(chainSessions(&lookups), &panicCounter{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, newChainRequest(http.MethodPut, "/api/records/r1", tt.csrfCookie, tt.csrfHeader))

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != "CSRF_VALIDATION_FAILED" {
				t.Errorf("code = %q, want %q", body.Code, "CSRF_VALIDATION_FAILED")
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != chainOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, chainOrigin)
			}
		})
	}
}

// TestChain_UnknownSession_Returns401BeforeCSRF は未知のセッションがCSRF検証より先に401になることを検証する。
func TestChain_UnknownSession_Returns401BeforeCSRF(t *testing.T) {
	var lookups int
	handler := newAuthenticatedChain(chainSessions(&lookups), &panicCounter{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stolen-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestChain_Preflight_SkipsSessionLookup はプリフライトがセッション検索より前に終了することを検証する。
func TestChain_Preflight_SkipsSessionLookup(t *testing.T) {
	var lookups int
	handler := newAuthenticatedChain(chainSessions(&lookups), &panicCounter{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/records/r1", nil)
	req.Header.Set("Origin", chainOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if lookups != 0 {
		t.Errorf("session lookups = %d, want 0", lookups)
	}
}

// TestChain_HandlerPanic_Returns500WithHeaders はハンドラーのpanicが外側で回復され、ヘッダーが残ることを検証する。
func TestChain_HandlerPanic_Returns500WithHeaders(t *testing.T) {
	var lookups int
	counter := &panicCounter{}
	handler := newAuthenticatedChain(chainSessions(&lookups), counter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil workspace")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newChainRequest(http.MethodGet, "/api/dashboard", "", ""))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if counter.count != 1 {
		t.Errorf("recorded panics = %d, want 1", counter.count)
	}
	if got := w.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("expected Content-Security-Policy on recovered response")
	}
}

// TestChain_OptionalSession_AnonymousRead は公開ルートが未認証でも閲覧できることを検証する。
func TestChain_OptionalSession_AnonymousRead(t *testing.T) {
	var lookups int
	finder := chainSessions(&lookups)

	var authenticated bool
	handler := NewOptionalSessionMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := UserIDFromContext(r.Context())
		authenticated = err == nil
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		cookie  string
		wantReq bool
		want    bool
	}{
		{"no cookie", "", false, false},
		{"unknown session", "stolen-session", true, false},
		{"valid session", "alice-session", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookups = 0
			req := httptest.NewRequest(http.MethodGet, "/api/records?sort=rating", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if authenticated != tt.want {
				t.Errorf("authenticated = %v, want %v", authenticated, tt.want)
			}
			if (lookups > 0) != tt.wantReq {
				t.Errorf("session lookups = %d, want lookup=%v", lookups, tt.wantReq)
			}
		})
	}
}
