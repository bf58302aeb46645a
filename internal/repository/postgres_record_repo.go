package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

const recordColumns = `id, title, ingredients, method, rating, owner_id, image_url, created_at`

// orderClauses は並び替えキーごとのORDER BY句。
// 同値の並びを安定させるため、作成日時とIDを第2・第3キーにする。
// タイトルはバイト順（COLLATE "C"）で並べ、model.SortKey.Beforeの比較と一致させる。
var orderClauses = map[model.SortKey]string{
	model.SortByCreatedAt: `created_at DESC, id DESC`,
	model.SortByRating:    `rating DESC, created_at DESC, id DESC`,
	model.SortByTitle:     `title COLLATE "C" DESC, created_at DESC, id DESC`,
}

// PostgresRecordRepo はPostgreSQLを使用したレコードリポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

func scanRecord(row interface{ Scan(...any) error }) (*model.Record, error) {
	rec := &model.Record{}
	err := row.Scan(&rec.ID, &rec.Title, &rec.Ingredients, &rec.Method, &rec.Rating,
		&rec.OwnerID, &rec.ImageURL, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List は全レコードを指定キーの降順で返す。
func (r *PostgresRecordRepo) List(ctx context.Context, orderBy model.SortKey) ([]model.Record, error) {
	order, ok := orderClauses[orderBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort key: %q", orderBy)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY `+order,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresRecordRepo) FindByID(ctx context.Context, id string) (*model.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return rec, nil
}

// Create はレコードを作成する。IDと作成日時はデータベースが採番する。
func (r *PostgresRecordRepo) Create(ctx context.Context, draft model.RecordDraft) (*model.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`INSERT INTO records (title, ingredients, method, rating, owner_id, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+recordColumns,
		draft.Title, draft.Ingredients, draft.Method, draft.Rating, draft.OwnerID, draft.ImageURL,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return rec, nil
}

// Update は所有者が一致するレコードを部分更新する。owner_idは更新しない。
func (r *PostgresRecordRepo) Update(ctx context.Context, id, ownerID string, patch model.RecordPatch) (*model.Record, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Ingredients != nil {
		add("ingredients", *patch.Ingredients)
	}
	if patch.Method != nil {
		add("method", *patch.Method)
	}
	if patch.Rating != nil {
		add("rating", *patch.Rating)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("empty record patch")
	}

	args = append(args, id, ownerID)
	query := fmt.Sprintf(
		`UPDATE records SET %s WHERE id = $%d AND owner_id = $%d RETURNING `+recordColumns,
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return rec, nil
}

// Delete は所有者が一致するレコードを削除する。
func (r *PostgresRecordRepo) Delete(ctx context.Context, id, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwnerID は指定ユーザーの全レコードを削除する。
func (r *PostgresRecordRepo) DeleteByOwnerID(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete records by owner: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
