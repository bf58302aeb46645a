package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

func seedSmoothies(env *testEnv) {
	env.backends.seed(
		model.Record{ID: "r1", Title: "Banana", Rating: 7, OwnerID: "user-1", ImageURL: "http://img/1"},
		model.Record{ID: "r2", Title: "Mango", Rating: 9, OwnerID: "user-2", ImageURL: "http://img/2"},
		model.Record{ID: "r3", Title: "Apple", Rating: 4, OwnerID: "user-1", ImageURL: "http://img/3"},
	)
}

func recordIDs(v viewResponse) []string {
	ids := make([]string, len(v.Records))
	for i, r := range v.Records {
		ids[i] = r.ID
	}
	return ids
}

func TestRecordHandler_ListRecords_SortedDescending(t *testing.T) {
	tests := []struct {
		sort string
		want []string
	}{
		{"", []string{"r3", "r2", "r1"}},
		{"time", []string{"r3", "r2", "r1"}},
		{"rating", []string{"r2", "r1", "r3"}},
		{"title", []string{"r2", "r1", "r3"}},
	}

	for _, tt := range tests {
		t.Run("sort="+tt.sort, func(t *testing.T) {
			env := newTestEnv(t)
			seedSmoothies(env)
			h := NewRecordHandler(env.registry, env.uploads)

			w := httptest.NewRecorder()
			h.ListRecords(w, env.newRequest(http.MethodGet, "/api/records?sort="+tt.sort, nil, ""))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
			}
			got := decodeBody[viewResponse](t, w)
			if diff := cmp.Diff(tt.want, recordIDs(got)); diff != "" {
				t.Errorf("record order mismatch (-want +got):\n%s", diff)
			}
			if got.Scope != "all" || got.Status != "ready" {
				t.Errorf("scope/status = %q/%q, want all/ready", got.Scope, got.Status)
			}
		})
	}
}

func TestRecordHandler_ListRecords_CanMutateFollowsViewer(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	tests := []struct {
		name      string
		sessionID string
		want      map[string]bool
	}{
		{"owner", "sess-1", map[string]bool{"r1": true, "r2": false, "r3": true}},
		{"anonymous", "", map[string]bool{"r1": false, "r2": false, "r3": false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ListRecords(w, env.newRequest(http.MethodGet, "/api/records", nil, tt.sessionID))

			got := map[string]bool{}
			for _, r := range decodeBody[viewResponse](t, w).Records {
				got[r.ID] = r.CanMutate
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("can_mutate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordHandler_ListRecords_InvalidSortKey(t *testing.T) {
	env := newTestEnv(t)
	h := NewRecordHandler(env.registry, env.uploads)

	w := httptest.NewRecorder()
	h.ListRecords(w, env.newRequest(http.MethodGet, "/api/records?sort=calories", nil, ""))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidSortKey {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidSortKey)
	}
}

func TestRecordHandler_Dashboard_OnlyOwnedRecords(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	w := httptest.NewRecorder()
	h.Dashboard(w, env.newRequest(http.MethodGet, "/api/dashboard?sort=rating", nil, "sess-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decodeBody[viewResponse](t, w)
	if diff := cmp.Diff([]string{"r1", "r3"}, recordIDs(got)); diff != "" {
		t.Errorf("dashboard mismatch (-want +got):\n%s", diff)
	}
	if got.Scope != "ownedBy(user-1)" {
		t.Errorf("scope = %q, want ownedBy(user-1)", got.Scope)
	}
	for _, r := range got.Records {
		if !r.CanMutate {
			t.Errorf("record %s: can_mutate = false, want true", r.ID)
		}
	}
}

func TestRecordHandler_GetRecord(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	h := NewRecordHandler(env.registry, env.uploads)

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withChiURLParam(env.newRequest(http.MethodGet, "/api/records/r2", nil, ""), "id", "r2")
		h.GetRecord(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := decodeBody[recordResponse](t, w); got.Title != "Mango" || got.Rating != 9 {
			t.Errorf("record = %+v, want Mango/9", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withChiURLParam(env.newRequest(http.MethodGet, "/api/records/missing", nil, ""), "id", "missing")
		h.GetRecord(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestRecordHandler_CreateRecord(t *testing.T) {
	resolved := `{"source_file_name":"a.png","path":"public/a.png","public_url":"http://localhost/storage/public/a.png","status":"resolved"}`

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantCode    string
		wantInserts int
	}{
		{
			name:        "valid with numeric rating",
			body:        `{"title":"Kiwi","ingredients":"kiwi, milk","method":"blend","rating":10,"upload":` + resolved + `}`,
			wantStatus:  http.StatusCreated,
			wantInserts: 1,
		},
		{
			name:        "valid with string rating",
			body:        `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":"0","upload":` + resolved + `}`,
			wantStatus:  http.StatusCreated,
			wantInserts: 1,
		},
		{
			name:       "missing upload",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":5}`,
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeUploadNotResolved,
		},
		{
			name:       "pending upload",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":5,"upload":{"status":"pending"}}`,
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeUploadNotResolved,
		},
		{
			name:       "rating above range",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":"11","upload":` + resolved + `}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeRatingOutOfRange,
		},
		{
			name:       "negative rating",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":-1,"upload":` + resolved + `}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeRatingOutOfRange,
		},
		{
			name:       "fractional rating",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":7.5,"upload":` + resolved + `}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeRatingOutOfRange,
		},
		{
			name:       "non numeric rating",
			body:       `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":"great","upload":` + resolved + `}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeRatingOutOfRange,
		},
		{
			name:       "missing title",
			body:       `{"ingredients":"kiwi","method":"blend","rating":5,"upload":` + resolved + `}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
		{
			name:       "unknown field",
			body:       `{"title":"Kiwi","owner_id":"someone-else"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
			h := NewRecordHandler(env.registry, env.uploads)

			w := httptest.NewRecorder()
			h.CreateRecord(w, env.newRequest(http.MethodPost, "/api/records", strings.NewReader(tt.body), "sess-1"))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
			} else {
				got := decodeBody[recordResponse](t, w)
				if got.OwnerID != "user-1" || !got.CanMutate {
					t.Errorf("created record = %+v, want owner user-1 with can_mutate", got)
				}
			}
			if env.backends.inserts != tt.wantInserts {
				t.Errorf("inserts = %d, want %d", env.backends.inserts, tt.wantInserts)
			}
		})
	}
}

func TestRecordHandler_CreateRecord_AppearsInLoadedView(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	h.Dashboard(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/dashboard?sort=rating", nil, "sess-1"))

	body := `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":5,` +
		`"upload":{"path":"public/k.png","public_url":"http://localhost/storage/public/k.png","status":"resolved"}}`
	w := httptest.NewRecorder()
	h.CreateRecord(w, env.newRequest(http.MethodPost, "/api/records?page=dashboard", strings.NewReader(body), "sess-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	created := decodeBody[recordResponse](t, w)

	view := env.registry.Get("sess-1").Dashboard.View()
	var ids []string
	for _, r := range view.Records {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"r1", created.ID, "r3"}, ids); diff != "" {
		t.Errorf("dashboard after create (-want +got):\n%s", diff)
	}
}

func TestRecordHandler_UpdateRecord(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "owner updates",
			id:         "r1",
			body:       `{"title":"Banana Split","method":"blend well","rating":"8"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "other owner is forbidden",
			id:         "r2",
			body:       `{"title":"Mine now","method":"blend","rating":"8"}`,
			wantStatus: http.StatusForbidden,
			wantCode:   model.ErrCodeForbidden,
		},
		{
			name:       "missing record",
			id:         "missing",
			body:       `{"title":"x","method":"y","rating":"1"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeRecordNotFound,
		},
		{
			name:       "invalid rating never reaches backend",
			id:         "r1",
			body:       `{"title":"x","method":"y","rating":"11"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeRatingOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedSmoothies(env)
			env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
			h := NewRecordHandler(env.registry, env.uploads)

			req := env.newRequest(http.MethodPut, "/api/records/"+tt.id, strings.NewReader(tt.body), "sess-1")
			w := httptest.NewRecorder()
			h.UpdateRecord(w, withChiURLParam(req, "id", tt.id))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
				return
			}
			got := decodeBody[recordResponse](t, w)
			if got.Title != "Banana Split" || got.Rating != 8 || got.Ingredients != "" || got.ImageURL != "http://img/1" {
				t.Errorf("updated record = %+v", got)
			}
		})
	}
}

func TestRecordHandler_RejectsForgedUpload(t *testing.T) {
	tests := []struct {
		name   string
		upload string
	}{
		{"script url", `{"path":"public/a.png","public_url":"javascript:alert(1)","status":"resolved"}`},
		{"path traversal", `{"path":"../../etc","public_url":"http://localhost/storage/../../etc","status":"resolved"}`},
		{"foreign host", `{"path":"public/a.png","public_url":"https://evil.example.net/public/a.png","status":"resolved"}`},
		{"url for another object", `{"path":"public/a.png","public_url":"http://localhost/storage/public/b.png","status":"resolved"}`},
	}

	for _, tt := range tests {
		t.Run("create/"+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
			h := NewRecordHandler(env.registry, env.uploads)

			body := `{"title":"Kiwi","ingredients":"kiwi","method":"blend","rating":5,"upload":` + tt.upload + `}`
			w := httptest.NewRecorder()
			h.CreateRecord(w, env.newRequest(http.MethodPost, "/api/records", strings.NewReader(body), "sess-1"))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if got := parseAPIErrorResponse(t, w); got.Code != model.ErrCodeUploadFailed {
				t.Errorf("code = %q, want %q", got.Code, model.ErrCodeUploadFailed)
			}
			if env.backends.inserts != 0 {
				t.Errorf("inserts = %d, want 0", env.backends.inserts)
			}
		})

		t.Run("update/"+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedSmoothies(env)
			env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
			h := NewRecordHandler(env.registry, env.uploads)

			body := `{"title":"Banana","method":"blend","rating":7,"upload":` + tt.upload + `}`
			req := env.newRequest(http.MethodPut, "/api/records/r1", strings.NewReader(body), "sess-1")
			w := httptest.NewRecorder()
			h.UpdateRecord(w, withChiURLParam(req, "id", "r1"))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			i, _ := env.backends.find("r1")
			if got := env.backends.records[i].ImageURL; got != "http://img/1" {
				t.Errorf("image url = %q, want unchanged", got)
			}
		})
	}
}

func TestRecordHandler_DeleteRecord_Success(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	h.Dashboard(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/dashboard", nil, "sess-1"))

	req := env.newRequest(http.MethodDelete, "/api/records/r1?page=dashboard", nil, "sess-1")
	w := httptest.NewRecorder()
	h.DeleteRecord(w, withChiURLParam(req, "id", "r1"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	view := env.registry.Get("sess-1").Dashboard.View()
	if len(view.Records) != 1 || view.Records[0].ID != "r3" {
		t.Errorf("dashboard after delete = %+v, want only r3", view.Records)
	}
}

func TestRecordHandler_DeleteRecord_RemovesFromOtherPage(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	h.ListRecords(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/records", nil, "sess-1"))
	h.Dashboard(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/dashboard", nil, "sess-1"))

	req := env.newRequest(http.MethodDelete, "/api/records/r1?page=dashboard", nil, "sess-1")
	w := httptest.NewRecorder()
	h.DeleteRecord(w, withChiURLParam(req, "id", "r1"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	feed := env.registry.Get("sess-1").Feed.View()
	var ids []string
	for _, r := range feed.Records {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"r3", "r2"}, ids); diff != "" {
		t.Errorf("feed after delete on dashboard (-want +got):\n%s", diff)
	}
}

func TestRecordHandler_DeleteRecord_FailureRestoresRecord(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	env.backends.deleteErr = errors.New("connection reset")
	h := NewRecordHandler(env.registry, env.uploads)

	h.ListRecords(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/records", nil, "sess-1"))

	req := env.newRequest(http.MethodDelete, "/api/records/r1", nil, "sess-1")
	w := httptest.NewRecorder()
	h.DeleteRecord(w, withChiURLParam(req, "id", "r1"))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeDBFailed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeDBFailed)
	}

	var ids []string
	for _, r := range env.registry.Get("sess-1").Feed.View().Records {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"r3", "r2", "r1"}, ids); diff != "" {
		t.Errorf("feed after failed delete (-want +got):\n%s", diff)
	}
}

func TestRecordHandler_DeleteRecord_GateRejectsOthersRecord(t *testing.T) {
	env := newTestEnv(t)
	seedSmoothies(env)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	h.ListRecords(httptest.NewRecorder(), env.newRequest(http.MethodGet, "/api/records", nil, "sess-1"))

	req := env.newRequest(http.MethodDelete, "/api/records/r2", nil, "sess-1")
	w := httptest.NewRecorder()
	h.DeleteRecord(w, withChiURLParam(req, "id", "r2"))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if n := len(env.registry.Get("sess-1").Feed.View().Records); n != 3 {
		t.Errorf("feed has %d records, want 3 (view untouched)", n)
	}
}

func TestRecordHandler_InvalidPage(t *testing.T) {
	env := newTestEnv(t)
	env.backends.login("sess-1", model.Viewer{UserID: "user-1"})
	h := NewRecordHandler(env.registry, env.uploads)

	req := env.newRequest(http.MethodDelete, "/api/records/r1?page=settings", nil, "sess-1")
	w := httptest.NewRecorder()
	h.DeleteRecord(w, withChiURLParam(req, "id", "r1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
