// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しないことを示す。
var ErrNotFound = errors.New("repository: row not found")

// ErrIdentityExists は同じproviderとprovider_user_idのidentityがすでに存在することを示す。
// 同じIdPアカウントのコールバックが並行した場合に発生する。
var ErrIdentityExists = errors.New("repository: identity already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はプロフィールの一部を更新し、更新後のユーザーを返す。
	// nilのフィールドは変更しない。パスワードはハッシュ化済みの値を渡す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、recordsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	// すでに同じidentityが存在する場合はErrIdentityExistsを返す。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// RecordRepository はスムージーのレコードの永続化インターフェース。
type RecordRepository interface {
	// List は全レコードを指定キーの降順で返す。
	List(ctx context.Context, orderBy model.SortKey) ([]model.Record, error)

	// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Record, error)

	// Create はレコードを作成し、採番されたIDと作成日時を含むレコードを返す。
	Create(ctx context.Context, draft model.RecordDraft) (*model.Record, error)

	// Update は所有者が一致するレコードを部分更新する。
	// 対象がない場合はErrNotFoundを返す。
	Update(ctx context.Context, id, ownerID string, patch model.RecordPatch) (*model.Record, error)

	// Delete は所有者が一致するレコードを削除する。対象がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id, ownerID string) error

	// DeleteByOwnerID は指定ユーザーの全レコードを削除する。
	DeleteByOwnerID(ctx context.Context, ownerID string) error
}
