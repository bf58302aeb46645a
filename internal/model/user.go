// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	AvatarURL    string
	Bio          string
	PasswordHash string // bcryptハッシュ。未設定の場合は空文字列
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// Google、GitHubなど複数のIdPに対応する。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// ブラウザのsession_id Cookieと1対1で対応する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ProfileUpdate はプロフィール更新1回分の変更内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	Phone     *string
	Email     *string
	Password  *string // 平文。永続化前にハッシュ化される
	AvatarURL *string
}

// IsEmpty は変更対象のフィールドが1つもない場合にtrueを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.Phone == nil && u.Email == nil && u.Password == nil && u.AvatarURL == nil
}
