package form

import (
	"strings"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// CreateRecordForm はスムージー作成フォーム。
// 画像のアップロード結果が確定するまで送信できない。
type CreateRecordForm struct {
	Title       string `validate:"required,max=200"`
	Ingredients string `validate:"required,max=2000"`
	Method      string `validate:"required,max=4000"`
	Rating      string `validate:"required"`
	Upload      *model.UploadResult
}

// Draft はフォームを検証し、ownerIDを所有者とする新規レコードを返す。
func (f CreateRecordForm) Draft(ownerID string) (model.RecordDraft, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Ingredients = strings.TrimSpace(f.Ingredients)
	f.Method = strings.TrimSpace(f.Method)

	if err := validateStruct(f); err != nil {
		return model.RecordDraft{}, err
	}
	rating, err := ParseRating(f.Rating)
	if err != nil {
		return model.RecordDraft{}, err
	}
	if !f.Upload.Resolved() {
		return model.RecordDraft{}, model.NewUploadNotResolvedError()
	}
	if ownerID == "" {
		return model.RecordDraft{}, model.NewUnauthorizedError()
	}

	return model.RecordDraft{
		Title:       f.Title,
		Ingredients: f.Ingredients,
		Method:      f.Method,
		Rating:      rating,
		OwnerID:     ownerID,
		ImageURL:    f.Upload.PublicURL,
	}, nil
}

// UpdateRecordForm はスムージー編集フォーム。
// タイトル、作り方、評価は必須。材料と画像は指定された場合のみ更新する。
type UpdateRecordForm struct {
	Title       string  `validate:"required,max=200"`
	Ingredients *string `validate:"omitempty,max=2000"`
	Method      string  `validate:"required,max=4000"`
	Rating      string  `validate:"required"`
	Upload      *model.UploadResult
}

// Patch はフォームを検証し、レコードの部分更新を返す。
func (f UpdateRecordForm) Patch() (model.RecordPatch, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Method = strings.TrimSpace(f.Method)
	f.Ingredients = trimPtr(f.Ingredients)

	if err := validateStruct(f); err != nil {
		return model.RecordPatch{}, err
	}
	rating, err := ParseRating(f.Rating)
	if err != nil {
		return model.RecordPatch{}, err
	}

	patch := model.RecordPatch{
		Title:  &f.Title,
		Method: &f.Method,
		Rating: &rating,
	}
	if f.Ingredients != nil && *f.Ingredients != "" {
		patch.Ingredients = f.Ingredients
	}
	if f.Upload != nil {
		if !f.Upload.Resolved() {
			return model.RecordPatch{}, model.NewUploadNotResolvedError()
		}
		url := f.Upload.PublicURL
		patch.ImageURL = &url
	}
	return patch, nil
}
