// Package gate はレコードの編集・削除操作を公開してよいかを判定する。
//
// 判定は副作用を持たない純粋関数で、描画のたびに評価する。
// セッションはコレクションと独立して変化する（ログアウト、アカウント切替）ため、
// 判定結果をレコードに保持してはならない。
package gate

import "github.com/PRAGNESH1006/Smoothies/internal/model"

// CanMutate は閲覧者がレコードを編集・削除できる場合にtrueを返す。
// 認証済みで、かつレコードの所有者と一致する場合のみ許可する。
func CanMutate(viewer model.Viewer, record model.Record) bool {
	return viewer.Authenticated() && viewer.UserID == record.OwnerID
}

// Filter はrecordsのうち閲覧者が変更できるレコードのIDを返す。
func Filter(viewer model.Viewer, records []model.Record) map[string]bool {
	allowed := make(map[string]bool, len(records))
	for _, r := range records {
		if CanMutate(viewer, r) {
			allowed[r.ID] = true
		}
	}
	return allowed
}
