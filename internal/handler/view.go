package handler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/gate"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

// recordResponse はレコードのAPIレスポンス。
// can_mutateは描画のたびに現在の閲覧者で評価する。
type recordResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Ingredients string    `json:"ingredients"`
	Method      string    `json:"method"`
	Rating      int       `json:"rating"`
	OwnerID     string    `json:"owner_id"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	CanMutate   bool      `json:"can_mutate"`
}

// viewResponse はコレクションビューのAPIレスポンス。
type viewResponse struct {
	Records    []recordResponse `json:"records"`
	Sort       string           `json:"sort"`
	Scope      string           `json:"scope"`
	Status     string           `json:"status"`
	Generation uint64           `json:"generation"`
}

// viewerResponse は閲覧者のAPIレスポンス。未認証の場合はauthenticatedのみfalseになる。
type viewerResponse struct {
	Authenticated bool      `json:"authenticated"`
	ID            string    `json:"id,omitempty"`
	Email         string    `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// uploadPayload はアップロード結果のAPI表現。
// アップロードAPIのレスポンスであり、作成・編集フォームの入力でもある。
type uploadPayload struct {
	SourceFileName string `json:"source_file_name"`
	Path           string `json:"path"`
	PublicURL      string `json:"public_url"`
	Status         string `json:"status"`
}

func toRecordResponse(viewer model.Viewer, rec model.Record) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		Title:       rec.Title,
		Ingredients: rec.Ingredients,
		Method:      rec.Method,
		Rating:      rec.Rating,
		OwnerID:     rec.OwnerID,
		ImageURL:    rec.ImageURL,
		CreatedAt:   rec.CreatedAt,
		CanMutate:   gate.CanMutate(viewer, rec),
	}
}

func toViewResponse(viewer model.Viewer, view collection.View) viewResponse {
	records := make([]recordResponse, len(view.Records))
	for i, rec := range view.Records {
		records[i] = toRecordResponse(viewer, rec)
	}
	return viewResponse{
		Records:    records,
		Sort:       string(view.SortKey),
		Scope:      view.Scope.String(),
		Status:     string(view.Status),
		Generation: view.Generation,
	}
}

func toViewerResponse(v model.Viewer) viewerResponse {
	if !v.Authenticated() {
		return viewerResponse{}
	}
	return viewerResponse{
		Authenticated: true,
		ID:            v.UserID,
		Email:         v.Email,
		Name:          v.DisplayName,
		AvatarURL:     v.AvatarURL,
		Phone:         v.Phone(),
		CreatedAt:     v.CreatedAt,
	}
}

func toUploadPayload(u model.UploadResult) uploadPayload {
	return uploadPayload{
		SourceFileName: u.SourceFileName,
		Path:           u.Path,
		PublicURL:      u.PublicURL,
		Status:         string(u.Status),
	}
}

// result はフォームに取り込むアップロード結果を返す。未指定の場合はnil。
func (p *uploadPayload) result() *model.UploadResult {
	if p == nil {
		return nil
	}
	return &model.UploadResult{
		SourceFileName: p.SourceFileName,
		Path:           p.Path,
		PublicURL:      p.PublicURL,
		Status:         model.UploadStatus(p.Status),
	}
}

// ratingInput は評価の入力値。JSONの数値と文字列のどちらも受け付け、
// 整数判定はフォームの検証に委ねる。
type ratingInput string

// UnmarshalJSON は数値リテラルをそのまま文字列として保持する。
func (r *ratingInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ratingInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = ratingInput(strings.TrimSpace(n.String()))
	return nil
}

// String はフォームに渡す文字列を返す。
func (r ratingInput) String() string {
	return string(r)
}

// parsePage は削除・作成・更新の対象ページ名を返す。未指定は一覧ページ。
func parsePage(s string) (string, error) {
	switch s {
	case "", "feed", "home":
		return workspace.PageFeed, nil
	case workspace.PageDashboard:
		return workspace.PageDashboard, nil
	}
	return "", model.NewValidationError("pageの値が不正です: " + strconv.Quote(s))
}
