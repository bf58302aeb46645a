package model

import "time"

// メタデータの既知キー。
const (
	MetadataPhone = "phone"
	MetadataBio   = "bio"
)

// Viewer は現在の閲覧者（認証済みユーザーとプロフィール）を表す。
// ゼロ値は未認証状態を表し、エラーではなく有効な値として扱う。
type Viewer struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Anonymous は未認証の閲覧者を返す。
func Anonymous() Viewer {
	return Viewer{}
}

// Authenticated は認証済みのユーザーが存在する場合にtrueを返す。
func (v Viewer) Authenticated() bool {
	return v.UserID != ""
}

// Phone はメタデータに保存された電話番号を返す。
func (v Viewer) Phone() string {
	return v.Metadata[MetadataPhone]
}

// Clone はメタデータを複製したViewerを返す。
// 購読者間でmapを共有しないために使用する。
func (v Viewer) Clone() Viewer {
	if v.Metadata == nil {
		return v
	}
	md := make(map[string]string, len(v.Metadata))
	for k, val := range v.Metadata {
		md[k] = val
	}
	v.Metadata = md
	return v
}

// ViewerFromUser はUserからViewerを組み立てる。
func ViewerFromUser(u *User) Viewer {
	if u == nil {
		return Anonymous()
	}
	md := map[string]string{}
	if u.Phone != "" {
		md[MetadataPhone] = u.Phone
	}
	if u.Bio != "" {
		md[MetadataBio] = u.Bio
	}
	return Viewer{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
		Metadata:    md,
		CreatedAt:   u.CreatedAt,
	}
}
