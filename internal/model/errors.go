// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryDB         = "db"
	CategoryStorage    = "storage"
	CategoryValidation = "validation"
	CategorySystem     = "system"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, db, storage, validation, system
	Action   string // ユーザー向け対処方法
	Reason   string // 機械可読な失敗理由（アップロード失敗など）
	Err      error  // 原因。ログにのみ出力し、レスポンスには含めない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeRatingOutOfRange  = "RATING_OUT_OF_RANGE"
	ErrCodeInvalidSortKey    = "INVALID_SORT_KEY"
	ErrCodeUploadNotResolved = "UPLOAD_NOT_RESOLVED"
	ErrCodeNoProfileChanges  = "NO_PROFILE_CHANGES"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeDBFailed          = "DB_FAILED"
	ErrCodeRecordNotFound    = "RECORD_NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUploadFailed      = "UPLOAD_FAILED"
)

// アップロード失敗理由
const (
	UploadReasonEmptyFile     = "empty_file"
	UploadReasonTooLarge      = "too_large"
	UploadReasonInvalidType   = "invalid_type"
	UploadReasonInvalidPath   = "invalid_path"
	UploadReasonStorageFailed = "storage_failed"
)

// NewValidationError は入力検証エラーを生成する。
// 検証エラーはリモート呼び出しの前に返される。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewRatingOutOfRangeError は評価値が範囲外の場合のエラーを生成する。
func NewRatingOutOfRangeError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeRatingOutOfRange,
		Message:  fmt.Sprintf("評価は%dから%dの整数で入力してください: %q", MinRating, MaxRating, input),
		Category: CategoryValidation,
		Action:   "0から10までの整数を入力してください。",
	}
}

// NewInvalidSortKeyError は未知の並び替えキーのエラーを生成する。
func NewInvalidSortKeyError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSortKey,
		Message:  fmt.Sprintf("無効な並び替えキーです: %s", key),
		Category: CategoryValidation,
		Action:   "並び替えには time、rating、title のいずれかを指定してください。",
	}
}

// NewUploadNotResolvedError は画像の公開URLが未確定のまま作成しようとした場合のエラーを生成する。
func NewUploadNotResolvedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadNotResolved,
		Message:  "画像のアップロードが完了していません。",
		Category: CategoryValidation,
		Action:   "画像のアップロード完了後に再度送信してください。",
	}
}

// NewNoProfileChangesError はプロフィールに変更がない場合のエラーを生成する。
func NewNoProfileChangesError() *APIError {
	return &APIError{
		Code:     ErrCodeNoProfileChanges,
		Message:  "変更された項目がありません。",
		Category: CategoryValidation,
		Action:   "変更する項目を入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewAuthError は認証バックエンドの失敗を表すエラーを生成する。
func NewAuthError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "アカウント情報の更新に失敗しました。",
		Category: CategoryAuth,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewDBError はテーブル操作の失敗を表すエラーを生成する。
func NewDBError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeDBFailed,
		Message:  "データの読み書きに失敗しました。",
		Category: CategoryDB,
		Action:   "ページを再読み込みしてから再度お試しください。",
		Err:      err,
	}
}

// NewRecordNotFoundError はレコードが見つからない場合のエラーを生成する。
func NewRecordNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定されたスムージーが見つかりません: %s", id),
		Category: CategoryDB,
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewForbiddenError は所有者以外が変更しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このスムージーを変更する権限がありません。",
		Category: CategoryAuth,
		Action:   "自分が作成したスムージーのみ編集・削除できます。",
	}
}

// NewUploadError はアップロード失敗のエラーを生成する。
// reasonには UploadReason* のいずれかを指定する。
func NewUploadError(reason string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("画像のアップロードに失敗しました: %s", reason),
		Category: CategoryStorage,
		Action:   "ファイルを確認して再度アップロードしてください。",
		Reason:   reason,
		Err:      err,
	}
}

// IsCategory はエラーが指定カテゴリのAPIErrorかを判定する。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// HasCode はエラーが指定コードのAPIErrorかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
