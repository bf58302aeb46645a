package platform

import (
	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/repository"
	"github.com/PRAGNESH1006/Smoothies/internal/security"
	"github.com/PRAGNESH1006/Smoothies/internal/session"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

// Backends はworkspace.Backendsの実装。
type Backends struct {
	auth      SessionAuthenticator
	users     ProfileWriter
	records   repository.RecordRepository
	sanitizer security.TextSanitizer
}

// NewBackends はBackendsを生成する。
func NewBackends(
	authenticator SessionAuthenticator,
	users ProfileWriter,
	records repository.RecordRepository,
	sanitizer security.TextSanitizer,
) *Backends {
	return &Backends{auth: authenticator, users: users, records: records, sanitizer: sanitizer}
}

// Auth はセッションIDに紐づく認証バックエンドを返す。
func (b *Backends) Auth(sessionID string) session.AuthBackend {
	return NewAuth(sessionID, b.auth, b.users)
}

// Table は閲覧者の権限で操作するテーブルを返す。
func (b *Backends) Table(viewer workspace.ViewerFunc) collection.Table {
	return NewTable(b.records, viewer, b.sanitizer)
}

var _ workspace.Backends = (*Backends)(nil)
