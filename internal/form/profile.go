package form

import "github.com/PRAGNESH1006/Smoothies/internal/model"

// ProfileChanges はプロフィール編集フォーム。nilまたは空文字列の項目は変更しない。
type ProfileChanges struct {
	Phone    *string `validate:"omitempty,max=32"`
	Email    *string `validate:"omitempty,email,max=254"`
	Password *string `validate:"omitempty,min=6,max=72"`
}

// Normalize は前後の空白を除去し、検証済みのフォームを返す。
// パスワードは空白も有効な文字として扱うため除去しない。
func (c ProfileChanges) Normalize() (ProfileChanges, error) {
	c.Phone = trimPtr(c.Phone)
	c.Email = trimPtr(c.Email)
	if err := validateStruct(c); err != nil {
		return ProfileChanges{}, err
	}
	return c, nil
}

// Steps は現在の閲覧者と比較して実際に変更される項目を、
// 電話番号 → メールアドレス → パスワードの固定順で返す。
// 変更がない場合は空のスライスを返す。
func (c ProfileChanges) Steps(current model.Viewer) []model.ProfileUpdate {
	var steps []model.ProfileUpdate
	if c.Phone != nil && *c.Phone != current.Phone() {
		phone := *c.Phone
		steps = append(steps, model.ProfileUpdate{Phone: &phone})
	}
	if c.Email != nil && *c.Email != "" && *c.Email != current.Email {
		email := *c.Email
		steps = append(steps, model.ProfileUpdate{Email: &email})
	}
	if c.Password != nil && *c.Password != "" {
		password := *c.Password
		steps = append(steps, model.ProfileUpdate{Password: &password})
	}
	return steps
}
