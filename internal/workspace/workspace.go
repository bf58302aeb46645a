// Package workspace はブラウザセッションごとにSession Providerと
// 2つのCollection Synchronizer（一覧ページ・ダッシュボード）を束ねる。
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/metrics"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/session"
)

// ページ名。削除対象のビューを選ぶために使用する。
const (
	PageFeed      = "feed"
	PageDashboard = "dashboard"
)

// ViewerFunc は現在の閲覧者を返す関数。テーブルアダプタが所有者の検証に使用する。
type ViewerFunc func(ctx context.Context) model.Viewer

// Backends はワークスペースが使用するリモート操作の実装を生成する。
type Backends interface {
	// Auth はブラウザセッションに紐づく認証バックエンドを返す。
	Auth(sessionID string) session.AuthBackend
	// Table は閲覧者の権限で操作するテーブルを返す。
	Table(viewer ViewerFunc) collection.Table
}

// Workspace は1つのブラウザセッションが所有するコアコンポーネントの組。
type Workspace struct {
	SessionID string
	Session   *session.Provider
	Feed      *collection.Synchronizer
	Dashboard *collection.Synchronizer

	mu          sync.Mutex
	lastUserID  string
	unsubscribe func()
}

// Factory はWorkspaceを生成する。
type Factory struct {
	backends Backends
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewFactory はFactoryを生成する。
func NewFactory(backends Backends, m metrics.MetricsCollector, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{backends: backends, metrics: m, logger: logger}
}

// New はセッションIDに紐づくWorkspaceを生成する。
// 閲覧者のIDが変わるとダッシュボードのビューを初期化する。
func (f *Factory) New(sessionID string) *Workspace {
	provider := session.NewProvider(f.backends.Auth(sessionID), f.logger)
	table := f.backends.Table(provider.Resolve)

	ws := &Workspace{
		SessionID: sessionID,
		Session:   provider,
		Feed:      collection.NewSynchronizer(table, f.metrics, f.logger.With(slog.String("page", PageFeed))),
		Dashboard: collection.NewSynchronizer(table, f.metrics, f.logger.With(slog.String("page", PageDashboard))),
	}
	ws.unsubscribe = provider.Subscribe(ws.onViewerChanged)
	return ws
}

func (w *Workspace) onViewerChanged(v model.Viewer) {
	w.mu.Lock()
	changed := w.lastUserID != v.UserID
	w.lastUserID = v.UserID
	w.mu.Unlock()

	if changed {
		w.Dashboard.Reset()
	}
}

// Viewer は現在の閲覧者を返す。
func (w *Workspace) Viewer(ctx context.Context) model.Viewer {
	return w.Session.Resolve(ctx)
}

// FetchFeed は全件スコープで一覧ページのビューを取得する。
func (w *Workspace) FetchFeed(ctx context.Context, key model.SortKey) (collection.View, error) {
	return w.Feed.Fetch(ctx, key, model.ScopeAll())
}

// FetchDashboard は現在の閲覧者が所有するレコードのビューを取得する。
// 未認証の場合は空のビューになる。
func (w *Workspace) FetchDashboard(ctx context.Context, key model.SortKey) (collection.View, error) {
	viewer := w.Viewer(ctx)
	return w.Dashboard.Fetch(ctx, key, model.OwnedBy(viewer.UserID))
}

// Collection はページ名に対応するSynchronizerを返す。未知の名前は一覧ページとして扱う。
func (w *Workspace) Collection(page string) *collection.Synchronizer {
	if page == PageDashboard {
		return w.Dashboard
	}
	return w.Feed
}

// sibling はページ名に対応しないもう一方のSynchronizerを返す。
func (w *Workspace) sibling(page string) *collection.Synchronizer {
	if page == PageDashboard {
		return w.Feed
	}
	return w.Dashboard
}

// Create はpageのビューでレコードを作成し、確定したレコードをもう一方のビューにも反映する。
func (w *Workspace) Create(ctx context.Context, page string, draft model.RecordDraft) (model.Record, error) {
	rec, err := w.Collection(page).Create(ctx, draft)
	if err != nil {
		return model.Record{}, err
	}
	w.sibling(page).Apply(rec)
	return rec, nil
}

// Update はpageのビューでレコードを更新し、確定したレコードをもう一方のビューにも反映する。
func (w *Workspace) Update(ctx context.Context, page, id string, patch model.RecordPatch) (model.Record, error) {
	rec, err := w.Collection(page).Update(ctx, id, patch)
	if err != nil {
		return model.Record{}, err
	}
	w.sibling(page).Apply(rec)
	return rec, nil
}

// Delete はpageのビューからレコードを楽観的に削除する。
// 削除が確定した場合のみ、もう一方のビューからも取り除く。失敗時の復元はpageのビューだけで行う。
func (w *Workspace) Delete(ctx context.Context, page, id string) error {
	if err := w.Collection(page).Delete(ctx, id); err != nil {
		return err
	}
	w.sibling(page).Forget(id)
	return nil
}

// Close は閲覧者の変更通知の購読を解除する。
func (w *Workspace) Close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
}
