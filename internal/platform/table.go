// Package platform はコアコンポーネントが利用するリモート操作（テーブル・認証）を
// リポジトリと認証サービスの上に実装するアダプタを提供する。
package platform

import (
	"context"
	"errors"
	"slices"

	"github.com/PRAGNESH1006/Smoothies/internal/collection"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/repository"
	"github.com/PRAGNESH1006/Smoothies/internal/security"
	"github.com/PRAGNESH1006/Smoothies/internal/workspace"
)

// Table はcollection.TableをRecordRepositoryの上に実装する。
// 書き込みは閲覧者の権限で行い、所有者以外の更新・削除を拒否する。
type Table struct {
	repo      repository.RecordRepository
	viewer    workspace.ViewerFunc
	sanitizer security.TextSanitizer
}

// NewTable はTableを生成する。
func NewTable(repo repository.RecordRepository, viewer workspace.ViewerFunc, sanitizer security.TextSanitizer) *Table {
	return &Table{repo: repo, viewer: viewer, sanitizer: sanitizer}
}

// Select は全レコードを指定キーの順で返す。
func (t *Table) Select(ctx context.Context, q collection.Query) ([]model.Record, error) {
	if !q.OrderBy.Valid() {
		return nil, model.NewInvalidSortKeyError(string(q.OrderBy))
	}
	records, err := t.repo.List(ctx, q.OrderBy)
	if err != nil {
		return nil, model.NewDBError(err)
	}
	if !q.Descending {
		slices.Reverse(records)
	}
	return records, nil
}

// Get は指定IDのレコードを返す。
func (t *Table) Get(ctx context.Context, id string) (model.Record, error) {
	r, err := t.repo.FindByID(ctx, id)
	if err != nil {
		return model.Record{}, model.NewDBError(err)
	}
	if r == nil {
		return model.Record{}, model.NewRecordNotFoundError(id)
	}
	return *r, nil
}

// Insert は閲覧者を所有者とするレコードを作成する。
func (t *Table) Insert(ctx context.Context, draft model.RecordDraft) (model.Record, error) {
	viewer := t.viewer(ctx)
	if !viewer.Authenticated() {
		return model.Record{}, model.NewUnauthorizedError()
	}
	if draft.OwnerID != viewer.UserID {
		return model.Record{}, model.NewForbiddenError()
	}

	draft.Title = t.sanitizer.Sanitize(draft.Title)
	draft.Ingredients = t.sanitizer.Sanitize(draft.Ingredients)
	draft.Method = t.sanitizer.Sanitize(draft.Method)
	if draft.Title == "" || draft.Ingredients == "" || draft.Method == "" {
		return model.Record{}, model.NewValidationError("タイトル・材料・作り方を入力してください。")
	}

	r, err := t.repo.Create(ctx, draft)
	if err != nil {
		return model.Record{}, model.NewDBError(err)
	}
	return *r, nil
}

// Update は閲覧者が所有するレコードを部分更新する。
func (t *Table) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	viewer := t.viewer(ctx)
	if !viewer.Authenticated() {
		return model.Record{}, model.NewUnauthorizedError()
	}

	for _, field := range []**string{&patch.Title, &patch.Ingredients, &patch.Method} {
		if *field == nil {
			continue
		}
		clean := t.sanitizer.Sanitize(**field)
		if clean == "" {
			return model.Record{}, model.NewValidationError("空の値には更新できません。")
		}
		*field = &clean
	}

	r, err := t.repo.Update(ctx, id, viewer.UserID, patch)
	if err != nil {
		return model.Record{}, t.ownershipError(ctx, id, err)
	}
	return *r, nil
}

// Delete は閲覧者が所有するレコードを削除する。
func (t *Table) Delete(ctx context.Context, id string) error {
	viewer := t.viewer(ctx)
	if !viewer.Authenticated() {
		return model.NewUnauthorizedError()
	}
	if err := t.repo.Delete(ctx, id, viewer.UserID); err != nil {
		return t.ownershipError(ctx, id, err)
	}
	return nil
}

// ownershipError は所有者条件付きの書き込みが0件だった理由を判定する。
// レコードが存在すれば権限エラー、存在しなければNotFoundとする。
func (t *Table) ownershipError(ctx context.Context, id string, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		return model.NewDBError(err)
	}
	r, findErr := t.repo.FindByID(ctx, id)
	if findErr != nil {
		return model.NewDBError(findErr)
	}
	if r == nil {
		return model.NewRecordNotFoundError(id)
	}
	return model.NewForbiddenError()
}

var _ collection.Table = (*Table)(nil)
