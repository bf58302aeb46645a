package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/session"
	"github.com/PRAGNESH1006/Smoothies/internal/storage"
	"github.com/PRAGNESH1006/Smoothies/internal/upload"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testStorageBaseURL = "http://localhost/storage"

// --- インメモリのバックエンド ---

// memBackends はworkspace.Backendsのインメモリ実装。
// セッション検索（middleware.SessionFinder）も兼ねる。
type memBackends struct {
	mu        sync.Mutex
	sessions  map[string]string       // sessionID -> userID
	users     map[string]model.Viewer // userID -> viewer
	records   []model.Record
	seq       int
	inserts   int
	deleteErr error
	emailErr  error
}

func newMemBackends() *memBackends {
	return &memBackends{
		sessions: make(map[string]string),
		users:    make(map[string]model.Viewer),
	}
}

func (b *memBackends) Auth(sessionID string) session.AuthBackend {
	return &memAuth{b: b, sessionID: sessionID}
}

func (b *memBackends) Table(viewer workspace.ViewerFunc) collection.Table {
	return &memTable{b: b, viewer: viewer}
}

func (b *memBackends) FindByID(ctx context.Context, id string) (*model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// login はsessionIDでuserがログインしている状態を作る。
func (b *memBackends) login(sessionID string, v model.Viewer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sessionID] = v.UserID
	b.users[v.UserID] = v
}

// seed はレコードを追加する。CreatedAtは追加順に新しくなる。
func (b *memBackends) seed(recs ...model.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range recs {
		b.seq++
		if r.CreatedAt.IsZero() {
			r.CreatedAt = baseTime.Add(time.Duration(b.seq) * time.Hour)
		}
		b.records = append(b.records, r)
	}
}

func (b *memBackends) find(id string) (int, bool) {
	for i, r := range b.records {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

type memAuth struct {
	b         *memBackends
	sessionID string
}

func (a *memAuth) CurrentUser(ctx context.Context) (model.Viewer, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	userID, ok := a.b.sessions[a.sessionID]
	if !ok {
		return model.Anonymous(), nil
	}
	return a.b.users[userID].Clone(), nil
}

func (a *memAuth) Update(ctx context.Context, update model.ProfileUpdate) (model.Viewer, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	userID, ok := a.b.sessions[a.sessionID]
	if !ok {
		return model.Viewer{}, errors.New("not signed in")
	}
	if update.Email != nil && a.b.emailErr != nil {
		return model.Viewer{}, a.b.emailErr
	}
	v := a.b.users[userID].Clone()
	if v.Metadata == nil {
		v.Metadata = map[string]string{}
	}
	if update.Phone != nil {
		v.Metadata[model.MetadataPhone] = *update.Phone
	}
	if update.Email != nil {
		v.Email = *update.Email
	}
	if update.AvatarURL != nil {
		v.AvatarURL = *update.AvatarURL
	}
	a.b.users[userID] = v
	return v.Clone(), nil
}

func (a *memAuth) SignOut(ctx context.Context) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	delete(a.b.sessions, a.sessionID)
	return nil
}

type memTable struct {
	b      *memBackends
	viewer workspace.ViewerFunc
}

func (t *memTable) Select(ctx context.Context, q collection.Query) ([]model.Record, error) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	out := append([]model.Record(nil), t.b.records...)
	sort.SliceStable(out, func(i, j int) bool { return q.OrderBy.Before(out[i], out[j]) })
	return out, nil
}

func (t *memTable) Get(ctx context.Context, id string) (model.Record, error) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	i, ok := t.b.find(id)
	if !ok {
		return model.Record{}, model.NewRecordNotFoundError(id)
	}
	return t.b.records[i], nil
}

func (t *memTable) Insert(ctx context.Context, draft model.RecordDraft) (model.Record, error) {
	viewer := t.viewer(ctx)
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if draft.OwnerID != viewer.UserID {
		return model.Record{}, model.NewForbiddenError()
	}
	t.b.seq++
	t.b.inserts++
	rec := model.Record{
		ID:          fmt.Sprintf("rec-%d", t.b.seq),
		Title:       draft.Title,
		Ingredients: draft.Ingredients,
		Method:      draft.Method,
		Rating:      draft.Rating,
		OwnerID:     draft.OwnerID,
		ImageURL:    draft.ImageURL,
		CreatedAt:   baseTime.Add(time.Duration(t.b.seq) * time.Hour),
	}
	t.b.records = append(t.b.records, rec)
	return rec, nil
}

func (t *memTable) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	viewer := t.viewer(ctx)
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	i, ok := t.b.find(id)
	if !ok {
		return model.Record{}, model.NewRecordNotFoundError(id)
	}
	if t.b.records[i].OwnerID != viewer.UserID {
		return model.Record{}, model.NewForbiddenError()
	}
	t.b.records[i] = patch.Apply(t.b.records[i])
	return t.b.records[i], nil
}

func (t *memTable) Delete(ctx context.Context, id string) error {
	viewer := t.viewer(ctx)
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	i, ok := t.b.find(id)
	if !ok {
		return model.NewRecordNotFoundError(id)
	}
	if t.b.records[i].OwnerID != viewer.UserID {
		return model.NewForbiddenError()
	}
	if t.b.deleteErr != nil {
		return t.b.deleteErr
	}
	t.b.records = append(t.b.records[:i], t.b.records[i+1:]...)
	return nil
}

// --- Uploaderのモック ---

type mockUploader struct {
	uploadFn func(ctx context.Context, f upload.File, targetPath string) (model.UploadResult, error)
	verifyFn func(result model.UploadResult) (model.UploadResult, error)
	targets  []string
}

func (m *mockUploader) Upload(ctx context.Context, f upload.File, targetPath string) (model.UploadResult, error) {
	m.targets = append(m.targets, targetPath)
	if m.uploadFn != nil {
		return m.uploadFn(ctx, f, targetPath)
	}
	return model.UploadResult{
		SourceFileName: f.Name,
		Path:           targetPath,
		PublicURL:      "http://localhost:8080/storage/" + targetPath,
		Status:         model.UploadResolved,
	}, nil
}

func (m *mockUploader) TargetPath(elem ...string) string {
	return "public/" + strings.Join(elem, "/")
}

func (m *mockUploader) Verify(result model.UploadResult) (model.UploadResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(result)
	}
	return result, nil
}

// --- テスト環境 ---

// testEnv は実際のWorkspace Registryとインメモリのバックエンドを組み合わせたテスト環境。
type testEnv struct {
	backends *memBackends
	registry *workspace.Registry
	uploads  *upload.Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	backends := newMemBackends()
	registry := workspace.NewRegistry(workspace.NewFactory(backends, nil, logger), workspace.RegistryConfig{}, logger)
	t.Cleanup(registry.Stop)

	store, err := storage.NewLocal(t.TempDir(), testStorageBaseURL)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	uploads := upload.NewPipeline(store, upload.Config{}, nil, logger)
	return &testEnv{backends: backends, registry: registry, uploads: uploads}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newRequest はセッションIDを注入したリクエストを生成する。sessionIDが空なら未認証。
func (e *testEnv) newRequest(method, target string, body io.Reader, sessionID string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if sessionID == "" {
		return req
	}
	sess, _ := e.backends.FindByID(req.Context(), sessionID)
	if sess == nil {
		return req
	}
	return req.WithContext(middleware.ContextWithSessionID(req.Context(), sessionID, sess.UserID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

func strPtr(s string) *string { return &s }
