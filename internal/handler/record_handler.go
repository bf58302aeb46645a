package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/form"
	"github.com/PRAGNESH1006/Smoothies/internal/gate"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

// WorkspaceSource はブラウザセッションごとのWorkspaceを提供する。
// workspace.Registryが実装する。
type WorkspaceSource interface {
	// Get はセッションIDのWorkspaceを返す。空文字列の場合は使い捨てのWorkspaceを返す。
	Get(sessionID string) *workspace.Workspace
	// Drop はセッションIDのWorkspaceを破棄する。
	Drop(sessionID string)
}

// UploadVerifier はクライアントが送り返したアップロード結果を検証する。
// upload.Pipelineが実装する。
type UploadVerifier interface {
	Verify(result model.UploadResult) (model.UploadResult, error)
}

// RecordHandler はスムージーの一覧・詳細・作成・編集・削除のHTTPハンドラー。
// 状態はすべてリクエストのWorkspaceが持つSynchronizerを通して変更する。
type RecordHandler struct {
	workspaces WorkspaceSource
	uploads    UploadVerifier
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(workspaces WorkspaceSource, uploads UploadVerifier) *RecordHandler {
	return &RecordHandler{workspaces: workspaces, uploads: uploads}
}

// recordRequest はレコード作成・編集リクエストのボディ。
type recordRequest struct {
	Title       string         `json:"title"`
	Ingredients *string        `json:"ingredients"`
	Method      string         `json:"method"`
	Rating      ratingInput    `json:"rating"`
	Upload      *uploadPayload `json:"upload"`
}

func (h *RecordHandler) workspace(r *http.Request) *workspace.Workspace {
	return h.workspaces.Get(middleware.SessionIDFromContext(r.Context()))
}

// upload はリクエストのアップロード結果を検証して返す。未指定の場合はnil。
func (h *RecordHandler) upload(req recordRequest) (*model.UploadResult, error) {
	if req.Upload == nil {
		return nil, nil
	}
	result, err := h.uploads.Verify(*req.Upload.result())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRecords は全レコードを指定の並び替えキーの降順で返す。
// GET /api/records?sort=time|rating|title
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	key, err := model.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspace(r)
	view, err := ws.FetchFeed(r.Context(), key)
	h.writeView(w, r, ws, ws.Feed, view, err)
}

// Dashboard は閲覧者が所有するレコードを返す。
// GET /api/dashboard?sort=time|rating|title
func (h *RecordHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	key, err := model.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspace(r)
	view, err := ws.FetchDashboard(r.Context(), key)
	h.writeView(w, r, ws, ws.Dashboard, view, err)
}

// writeView は取得結果を描画する。新しい取得に追い越された場合は
// その時点のビューを返し、後続の取得結果で置き換わるのを待つ。
func (h *RecordHandler) writeView(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, sync *collection.Synchronizer, view collection.View, err error) {
	if errors.Is(err, collection.ErrSuperseded) {
		view, err = sync.View(), nil
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewResponse(ws.Viewer(r.Context()), view))
}

// GetRecord はレコード1件を返す。
// GET /api/records/{id}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	rec, err := ws.Feed.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(ws.Viewer(r.Context()), rec))
}

// CreateRecord はレコードを作成する。アップロード結果が確定していない場合は送信できない。
// POST /api/records?page=feed|dashboard
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query().Get("page"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	upload, err := h.upload(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspace(r)
	viewer := ws.Viewer(r.Context())

	f := form.CreateRecordForm{
		Title:  req.Title,
		Method: req.Method,
		Rating: req.Rating.String(),
		Upload: upload,
	}
	if req.Ingredients != nil {
		f.Ingredients = *req.Ingredients
	}
	draft, err := f.Draft(viewer.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	rec, err := ws.Create(r.Context(), page, draft)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(viewer, rec))
}

// UpdateRecord はレコードを更新する。所有者以外は変更できない。
// PUT /api/records/{id}?page=feed|dashboard
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query().Get("page"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	upload, err := h.upload(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	patch, err := form.UpdateRecordForm{
		Title:       req.Title,
		Ingredients: req.Ingredients,
		Method:      req.Method,
		Rating:      req.Rating.String(),
		Upload:      upload,
	}.Patch()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspace(r)
	viewer := ws.Viewer(r.Context())
	sync := ws.Collection(page)
	id := chi.URLParam(r, "id")

	current, err := sync.Load(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !gate.CanMutate(viewer, current) {
		handleServiceError(w, model.NewForbiddenError())
		return
	}

	rec, err := ws.Update(r.Context(), page, id, patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(viewer, rec))
}

// DeleteRecord はレコードを削除する。pageで指定したビューから楽観的に取り除き、
// 失敗した場合はビューを元に戻してエラーを返す。確定した削除はもう一方のビューにも反映する。
// DELETE /api/records/{id}?page=feed|dashboard
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query().Get("page"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspace(r)
	viewer := ws.Viewer(r.Context())
	sync := ws.Collection(page)
	id := chi.URLParam(r, "id")

	for _, rec := range sync.View().Records {
		if rec.ID == id && !gate.CanMutate(viewer, rec) {
			handleServiceError(w, model.NewForbiddenError())
			return
		}
	}

	if err := ws.Delete(r.Context(), page, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
