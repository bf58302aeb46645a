// Package collection はバックエンドのテーブルとローカルの順序付きビューを同期する
// Collection Synchronizerを提供する。
//
// ビューの状態遷移:
//
//	Idle/Ready/Error → Fetching（並び替えキー変更・スコープ変更・初回表示）
//	Fetching → Ready（最新の世代の応答のみ反映）
//	Fetching → Error（直前のレコードは保持）
//
// 削除は楽観的に反映し、失敗時は元の位置に戻す。作成と更新はバックエンドの確定後に反映する。
package collection

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/PRAGNESH1006/Smoothies/internal/metrics"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// ErrSuperseded は取得結果が新しい取得要求に追い越されて破棄されたことを示す。
var ErrSuperseded = errors.New("collection: fetch superseded by a newer request")

// Query はテーブルからの一覧取得条件。
type Query struct {
	OrderBy    model.SortKey
	Descending bool
}

// Table はレコードを保持するバックエンドテーブルのインターフェース。
type Table interface {
	Select(ctx context.Context, q Query) ([]model.Record, error)
	Get(ctx context.Context, id string) (model.Record, error)
	Insert(ctx context.Context, draft model.RecordDraft) (model.Record, error)
	Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error)
	Delete(ctx context.Context, id string) error
}

// Synchronizer は1つのコレクションビューを所有し、テーブルと同期する。
type Synchronizer struct {
	table   Table
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu         sync.Mutex
	records    []model.Record
	key        model.SortKey
	scope      model.Scope
	status     Status
	err        error
	generation uint64
	epoch      uint64 // Resetごとに進む
}

// NewSynchronizer はSynchronizerを生成する。初期状態はIdleで、スコープは全件。
func NewSynchronizer(table Table, m metrics.MetricsCollector, logger *slog.Logger) *Synchronizer {
	if m == nil {
		m = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		table:   table,
		metrics: m,
		logger:  logger,
		key:     model.SortByCreatedAt,
		status:  StatusIdle,
	}
}

// Fetch は指定の並び替えキーで一覧を取得し、ビューを置き換える。
//
// 呼び出しごとに世代を進め、応答時点で世代が最新でなければ結果を破棄してErrSupersededを返す。
// 取得に失敗した場合は直前のレコードを保持したままError状態にし、DBエラーを返す。
// 所有者スコープの絞り込みは取得後にローカルで行う。
func (s *Synchronizer) Fetch(ctx context.Context, key model.SortKey, scope model.Scope) (View, error) {
	if !key.Valid() {
		return s.View(), model.NewInvalidSortKeyError(string(key))
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.status = StatusFetching
	s.mu.Unlock()

	start := time.Now()
	records, err := s.table.Select(ctx, Query{OrderBy: key, Descending: true})
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.metrics.RecordCollectionFetch(scopeLabel(scope), metrics.OutcomeSuperseded, elapsed)
		s.logger.Debug("collection fetch superseded",
			slog.String("sort_key", string(key)),
			slog.Uint64("generation", gen),
			slog.Uint64("current_generation", s.generation),
		)
		return s.snapshot(), ErrSuperseded
	}

	if err != nil {
		s.status = StatusError
		s.err = toDBError(err)
		s.metrics.RecordCollectionFetch(scopeLabel(scope), metrics.OutcomeFailure, elapsed)
		s.logger.Warn("collection fetch failed",
			slog.String("sort_key", string(key)),
			slog.String("scope", scope.String()),
			slog.String("error", err.Error()),
		)
		return s.snapshot(), s.err
	}

	s.records = filter(records, scope)
	s.key = key
	s.scope = scope
	s.status = StatusReady
	s.err = nil
	s.metrics.RecordCollectionFetch(scopeLabel(scope), metrics.OutcomeSuccess, elapsed)
	s.logger.Debug("collection fetched",
		slog.String("sort_key", string(key)),
		slog.String("scope", scope.String()),
		slog.Int("count", len(s.records)),
		slog.Uint64("generation", gen),
	)
	return s.snapshot(), nil
}

// Delete はレコードをビューから即座に取り除き、バックエンドに削除を要求する。
// 失敗した場合はレコードを並び順どおりの位置に戻してDBエラーを返す。
// 戻す前に再取得などで同じレコードがビューに現れていれば重複させない。
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := indexOf(s.records, id)
	epoch := s.epoch
	var removed model.Record
	var prevID string
	if idx >= 0 {
		removed = s.records[idx]
		if idx > 0 {
			prevID = s.records[idx-1].ID
		}
		s.records = removeAt(s.records, idx)
	}
	s.mu.Unlock()

	err := s.table.Delete(ctx, id)
	if err == nil {
		s.logger.Info("record deleted", slog.String("record_id", id))
		return nil
	}

	err = toDBError(err)
	if idx < 0 {
		return err
	}

	s.mu.Lock()
	if epoch == s.epoch && indexOf(s.records, id) < 0 && s.scope.Match(removed) {
		pos := restorePosition(s.records, s.key, prevID, removed)
		s.records = insertAt(s.records, pos, removed)
	}
	scope := s.scope
	s.mu.Unlock()

	s.metrics.RecordDeleteRollback(scopeLabel(scope))
	s.logger.Warn("record delete rolled back",
		slog.String("record_id", id),
		slog.String("error", err.Error()),
	)
	return err
}

// Create は新しいレコードをバックエンドに挿入し、確定したレコードをビューに加える。
// ビューには挿入が確定するまで何も反映しない。
func (s *Synchronizer) Create(ctx context.Context, draft model.RecordDraft) (model.Record, error) {
	if err := validateDraft(draft); err != nil {
		return model.Record{}, err
	}

	rec, err := s.table.Insert(ctx, draft)
	if err != nil {
		return model.Record{}, toDBError(err)
	}

	s.mu.Lock()
	s.place(rec)
	s.mu.Unlock()

	s.logger.Info("record created",
		slog.String("record_id", rec.ID),
		slog.String("owner_id", rec.OwnerID),
	)
	return rec, nil
}

// Update はレコードをバックエンドで更新し、確定したレコードでビューを置き換える。
func (s *Synchronizer) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	if patch.IsEmpty() {
		return model.Record{}, model.NewValidationError("変更された項目がありません。")
	}
	if patch.Rating != nil && !model.ValidRating(*patch.Rating) {
		return model.Record{}, model.NewRatingOutOfRangeError(strconv.Itoa(*patch.Rating))
	}

	rec, err := s.table.Update(ctx, id, patch)
	if err != nil {
		return model.Record{}, toDBError(err)
	}

	s.mu.Lock()
	if i := indexOf(s.records, id); i >= 0 {
		s.records = removeAt(s.records, i)
	}
	s.place(rec)
	s.mu.Unlock()

	s.logger.Info("record updated", slog.String("record_id", rec.ID))
	return rec, nil
}

// Apply は別のビューで確定したレコードをこのビューにも反映する。バックエンドは呼ばない。
func (s *Synchronizer) Apply(rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.records, rec.ID); i >= 0 {
		s.records = removeAt(s.records, i)
	}
	s.place(rec)
}

// Forget は別のビューで削除が確定したレコードをこのビューから取り除く。バックエンドは呼ばない。
func (s *Synchronizer) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.records, id); i >= 0 {
		s.records = removeAt(s.records, i)
	}
}

// Load は1件のレコードをバックエンドから読み取る。ビューは変更しない。
func (s *Synchronizer) Load(ctx context.Context, id string) (model.Record, error) {
	rec, err := s.table.Get(ctx, id)
	if err != nil {
		return model.Record{}, toDBError(err)
	}
	return rec, nil
}

// View は現在のビューのスナップショットを返す。
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Scope は現在適用されているスコープを返す。
func (s *Synchronizer) Scope() model.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Reset はビューを初期状態に戻す。実行中の取得結果は破棄される。
// 所有者スコープのビューで閲覧者が変わったときに使用する。
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.epoch++
	s.records = nil
	s.scope = model.Scope{}
	s.status = StatusIdle
	s.err = nil
}

// place は確定したレコードを並び順どおりの位置に置く。mu保持中に呼ぶこと。
// 一覧を未取得の場合やスコープ外のレコードは置かない。
func (s *Synchronizer) place(rec model.Record) {
	if s.status != StatusReady || !s.scope.Match(rec) || indexOf(s.records, rec.ID) >= 0 {
		return
	}
	s.records = insertAt(s.records, sortedIndex(s.records, s.key, rec), rec)
}

func (s *Synchronizer) snapshot() View {
	records := make([]model.Record, len(s.records))
	copy(records, s.records)
	return View{
		Records:    records,
		SortKey:    s.key,
		Scope:      s.scope,
		Status:     s.status,
		Err:        s.err,
		Generation: s.generation,
	}
}

func validateDraft(d model.RecordDraft) error {
	switch {
	case d.OwnerID == "":
		return model.NewUnauthorizedError()
	case d.ImageURL == "":
		return model.NewUploadNotResolvedError()
	case !model.ValidRating(d.Rating):
		return model.NewRatingOutOfRangeError(strconv.Itoa(d.Rating))
	case d.Title == "" || d.Method == "":
		return model.NewValidationError("タイトルと作り方は必須です。")
	}
	return nil
}

// toDBError はテーブル操作のエラーをDBエラーに変換する。既にAPIErrorの場合はそのまま返す。
func toDBError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewDBError(err)
}

func scopeLabel(scope model.Scope) string {
	if scope.IsOwned() {
		return "owned"
	}
	return "all"
}
