package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PRAGNESH1006/Smoothies/internal/auth"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	providersFn      func() []string
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string) (*model.Session, error)
	passwordLoginFn  func(ctx context.Context, email, password string) (*model.Session, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) Providers() []string {
	if m.providersFn != nil {
		return m.providersFn()
	}
	return []string{"google"}
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "https://accounts.example.com/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return &model.Session{ID: "session-123", UserID: "user-1"}, nil
}

func (m *mockAuthService) PasswordLogin(ctx context.Context, email, password string) (*model.Session, error) {
	if m.passwordLoginFn != nil {
		return m.passwordLoginFn(ctx, email, password)
	}
	return &model.Session{ID: "session-123", UserID: "user-1"}, nil
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		CookieSecure:  true,
		SessionMaxAge: 86400,
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Providers(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(&mockAuthService{
		providersFn: func() []string { return []string{"github", "google"} },
	}, env.registry, testAuthConfig())

	w := httptest.NewRecorder()
	h.Providers(w, httptest.NewRequest(http.MethodGet, "/auth/providers", nil))

	got := decodeBody[map[string][]string](t, w)
	if len(got["providers"]) != 2 || got["providers"][0] != "github" {
		t.Errorf("providers = %v, want [github google]", got["providers"])
	}
}

func TestAuthHandler_Login_SetsStateCookieAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	var gotProvider string
	h := NewAuthHandler(&mockAuthService{
		getLoginURLFn: func(provider, state string) (string, error) {
			gotProvider = provider
			return "https://accounts.example.com/auth?state=" + state, nil
		},
	}, env.registry, testAuthConfig())

	w := httptest.NewRecorder()
	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil), "provider", "google")
	h.Login(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if gotProvider != "google" {
		t.Errorf("provider = %q, want google", gotProvider)
	}
	state := findCookie(w, oauthStateCookie)
	if state == nil || state.Value == "" {
		t.Fatal("oauth_state cookie not set")
	}
	if !state.HttpOnly || !state.Secure {
		t.Error("oauth_state cookie should be HttpOnly and Secure")
	}
	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "state="+state.Value) {
		t.Errorf("Location = %q, want state %q", loc, state.Value)
	}
}

func TestAuthHandler_Login_UnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(&mockAuthService{
		getLoginURLFn: func(provider, state string) (string, error) {
			return "", auth.ErrUnknownProvider
		},
	}, env.registry, testAuthConfig())

	w := httptest.NewRecorder()
	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/auth/myspace/login", nil), "provider", "myspace")
	h.Login(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != "UNKNOWN_PROVIDER" {
		t.Errorf("code = %q, want UNKNOWN_PROVIDER", body.Code)
	}
}

func TestAuthHandler_Callback(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		stateCookie string
		callbackErr error
		wantStatus  int
		wantSession bool
	}{
		{
			name:        "success",
			query:       "?code=abc&state=xyz",
			stateCookie: "xyz",
			wantStatus:  http.StatusTemporaryRedirect,
			wantSession: true,
		},
		{
			name:        "state mismatch",
			query:       "?code=abc&state=xyz",
			stateCookie: "other",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:       "missing state cookie",
			query:      "?code=abc&state=xyz",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "missing code",
			query:       "?state=xyz",
			stateCookie: "xyz",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown provider",
			query:       "?code=abc&state=xyz",
			stateCookie: "xyz",
			callbackErr: auth.ErrUnknownProvider,
			wantStatus:  http.StatusNotFound,
		},
		{
			name:        "exchange failure",
			query:       "?code=abc&state=xyz",
			stateCookie: "xyz",
			callbackErr: errors.New("token exchange failed"),
			wantStatus:  http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewAuthHandler(&mockAuthService{
				handleCallbackFn: func(ctx context.Context, provider, code string) (*model.Session, error) {
					if tt.callbackErr != nil {
						return nil, tt.callbackErr
					}
					return &model.Session{ID: "session-" + code, UserID: "user-1"}, nil
				},
			}, env.registry, testAuthConfig())

			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback"+tt.query, nil)
			if tt.stateCookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.stateCookie})
			}
			w := httptest.NewRecorder()
			h.Callback(w, withChiURLParam(req, "provider", "google"))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			sess := findCookie(w, middleware.SessionCookieName)
			if tt.wantSession {
				if sess == nil || sess.Value != "session-abc" || sess.MaxAge != 86400 {
					t.Errorf("session cookie = %+v, want session-abc with max age 86400", sess)
				}
				if loc := w.Header().Get("Location"); loc != "http://localhost:3000" {
					t.Errorf("Location = %q, want base URL", loc)
				}
			} else if sess != nil {
				t.Errorf("unexpected session cookie %+v", sess)
			}
		})
	}
}

func TestAuthHandler_PasswordLogin(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(&mockAuthService{
		passwordLoginFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			if email != "alice@example.com" || password != "correct-horse" {
				return nil, model.NewInvalidCredentialsError()
			}
			env.backends.login("sess-pw", model.Viewer{UserID: "user-1", Email: email})
			return &model.Session{ID: "sess-pw", UserID: "user-1"}, nil
		},
	}, env.registry, testAuthConfig())

	t.Run("valid credentials", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := `{"email":"alice@example.com","password":"correct-horse"}`
		h.PasswordLogin(w, httptest.NewRequest(http.MethodPost, "/auth/password/login", strings.NewReader(body)))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		if c := findCookie(w, middleware.SessionCookieName); c == nil || c.Value != "sess-pw" {
			t.Errorf("session cookie = %+v, want sess-pw", c)
		}
		got := decodeBody[viewerResponse](t, w)
		if !got.Authenticated || got.Email != "alice@example.com" {
			t.Errorf("viewer = %+v", got)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := `{"email":"alice@example.com","password":"nope"}`
		h.PasswordLogin(w, httptest.NewRequest(http.MethodPost, "/auth/password/login", strings.NewReader(body)))

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if c := findCookie(w, middleware.SessionCookieName); c != nil {
			t.Errorf("unexpected session cookie %+v", c)
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	env := newTestEnv(t)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewAuthHandler(&mockAuthService{}, env.registry, testAuthConfig())

	env.registry.Get("sess-1")
	if env.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", env.registry.Len())
	}

	w := httptest.NewRecorder()
	h.Logout(w, env.newRequest(http.MethodPost, "/auth/logout", nil, "sess-1"))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if c := findCookie(w, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie = %+v, want cleared", c)
	}
	if env.registry.Len() != 0 {
		t.Errorf("registry len = %d, want 0", env.registry.Len())
	}
	if sess, _ := env.backends.FindByID(context.Background(), "sess-1"); sess != nil {
		t.Error("backend session still exists after logout")
	}
}

func TestAuthHandler_Logout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(&mockAuthService{}, env.registry, testAuthConfig())

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	env := newTestEnv(t)
	loginAlice(env)
	h := NewAuthHandler(&mockAuthService{}, env.registry, testAuthConfig())

	w := httptest.NewRecorder()
	h.Me(w, env.newRequest(http.MethodGet, "/auth/me", nil, "sess-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeBody[viewerResponse](t, w); got.ID != "user-1" || got.Email != "alice@example.com" {
		t.Errorf("me = %+v", got)
	}

	w = httptest.NewRecorder()
	h.Me(w, env.newRequest(http.MethodGet, "/auth/me", nil, ""))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
