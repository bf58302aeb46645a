package handler

import (
	"net/http"

	"github.com/PRAGNESH1006/Smoothies/internal/form"
	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/upload"
)

// ProfileHandler はプロフィールの表示・編集のHTTPハンドラー。
// 変更はWorkspaceのSession Providerを通して行い、購読者に反映させる。
type ProfileHandler struct {
	workspaces WorkspaceSource
	uploader   Uploader
	maxSize    int64
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(workspaces WorkspaceSource, uploader Uploader, maxSize int64) *ProfileHandler {
	if maxSize <= 0 {
		maxSize = upload.DefaultMaxSize
	}
	return &ProfileHandler{workspaces: workspaces, uploader: uploader, maxSize: maxSize}
}

// profileRequest はプロフィール更新リクエストのボディ。省略した項目は変更しない。
type profileRequest struct {
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// GetProfile は現在の閲覧者のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.SessionIDFromContext(r.Context()))
	viewer := ws.Viewer(r.Context())
	if !viewer.Authenticated() {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, toViewerResponse(viewer))
}

// UpdateProfile は電話番号・メールアドレス・パスワードを更新する。
// 途中の項目で失敗した場合、それまでの変更は反映されたままエラーを返す。
// PATCH /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspaces.Get(middleware.SessionIDFromContext(r.Context()))
	viewer, err := ws.Session.UpdateProfile(r.Context(), form.ProfileChanges{
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewerResponse(viewer))
}

// UploadAvatar はプロフィール画像をアップロードし、プロフィールに設定する。
// POST /api/profile/avatar (multipart/form-data, field "file")
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	f, cleanup, err := readMultipartFile(w, r, h.maxSize)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer cleanup()

	result, err := h.uploader.Upload(r.Context(), f, h.uploader.TargetPath("avatars", userID))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws := h.workspaces.Get(middleware.SessionIDFromContext(r.Context()))
	viewer, err := ws.Session.SetAvatar(r.Context(), result.PublicURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewerResponse(viewer))
}
