package model

// UploadStatus はアップロード結果の状態を表す。
type UploadStatus string

const (
	// UploadPending はアップロード中。
	UploadPending UploadStatus = "pending"
	// UploadResolved は公開URLが確定した状態。
	UploadResolved UploadStatus = "resolved"
	// UploadFailed はアップロードに失敗した状態。
	UploadFailed UploadStatus = "failed"
)

// UploadResult はファイルアップロードの結果を表す。
// 独自の永続化は持たず、フォームに一度だけ取り込まれて破棄される。
// PublicURLは結果整合であり、最初の画像読み込みが成功するまでは参考値として扱う。
type UploadResult struct {
	SourceFileName string
	Path           string
	PublicURL      string
	Status         UploadStatus
}

// Resolved は公開URLが確定している場合にtrueを返す。
func (u *UploadResult) Resolved() bool {
	return u != nil && u.Status == UploadResolved && u.PublicURL != ""
}
