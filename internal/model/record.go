package model

import (
	"fmt"
	"strings"
	"time"
)

// 評価値の範囲（両端を含む）。
const (
	MinRating = 0
	MaxRating = 10
)

// Record は評価対象のアイテム（スムージー）を表す。
type Record struct {
	ID          string
	Title       string
	Ingredients string
	Method      string
	Rating      int
	OwnerID     string // 作成後は変更しない
	ImageURL    string
	CreatedAt   time.Time
}

// RecordDraft はID採番前の新規レコードを表す。
type RecordDraft struct {
	Title       string
	Ingredients string
	Method      string
	Rating      int
	OwnerID     string
	ImageURL    string
}

// RecordPatch はレコードの部分更新を表す。nilのフィールドは変更しない。
// OwnerIDは不変のため含まない。
type RecordPatch struct {
	Title       *string
	Ingredients *string
	Method      *string
	Rating      *int
	ImageURL    *string
}

// IsEmpty は変更対象のフィールドが1つもない場合にtrueを返す。
func (p RecordPatch) IsEmpty() bool {
	return p.Title == nil && p.Ingredients == nil && p.Method == nil && p.Rating == nil && p.ImageURL == nil
}

// Apply はパッチをレコードに適用したコピーを返す。
func (p RecordPatch) Apply(r Record) Record {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Ingredients != nil {
		r.Ingredients = *p.Ingredients
	}
	if p.Method != nil {
		r.Method = *p.Method
	}
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.ImageURL != nil {
		r.ImageURL = *p.ImageURL
	}
	return r
}

// ValidRating は評価値が0〜10の範囲内かを判定する。
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// SortKey はレコード一覧の並び替えキーを表す。並び順は常に降順。
type SortKey string

const (
	// SortByCreatedAt は作成日時の新しい順。
	SortByCreatedAt SortKey = "created_at"
	// SortByRating は評価の高い順。
	SortByRating SortKey = "rating"
	// SortByTitle はタイトルの降順。
	SortByTitle SortKey = "title"
)

// SortKeys は受け付ける並び替えキーの一覧。
var SortKeys = []SortKey{SortByCreatedAt, SortByRating, SortByTitle}

// Valid は既知の並び替えキーかを判定する。
func (k SortKey) Valid() bool {
	switch k {
	case SortByCreatedAt, SortByRating, SortByTitle:
		return true
	}
	return false
}

// ParseSortKey は画面の並び替えセレクタの値をSortKeyに変換する。
// 空文字列の場合は作成日時順を返す。
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time", "created_at":
		return SortByCreatedAt, nil
	case "rating":
		return SortByRating, nil
	case "title":
		return SortByTitle, nil
	}
	return "", NewInvalidSortKeyError(s)
}

// Before は降順の並びでaがbより前に来る場合にtrueを返す。
// 同値の場合はfalse。タイトルはバイト順で比較する（データベース側はCOLLATE "C"）。
func (k SortKey) Before(a, b Record) bool {
	switch k {
	case SortByRating:
		return a.Rating > b.Rating
	case SortByTitle:
		return a.Title > b.Title
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

// Scope はコレクションビューに適用するフィルタを表す。
// ゼロ値は全件を表す。
type Scope struct {
	OwnerID string
	owned   bool
}

// ScopeAll は全レコードを対象とするスコープを返す。
func ScopeAll() Scope {
	return Scope{}
}

// OwnedBy は指定ユーザーが所有するレコードのみを対象とするスコープを返す。
// ownerIDが空の場合（未認証）はどのレコードにも一致しない。
func OwnedBy(ownerID string) Scope {
	return Scope{OwnerID: ownerID, owned: true}
}

// IsOwned は所有者で絞り込むスコープの場合にtrueを返す。
func (s Scope) IsOwned() bool {
	return s.owned
}

// Match はレコードがスコープに含まれるかを判定する。
func (s Scope) Match(r Record) bool {
	if !s.owned {
		return true
	}
	return s.OwnerID != "" && r.OwnerID == s.OwnerID
}

// String はログ出力用の表現を返す。
func (s Scope) String() string {
	if !s.owned {
		return "all"
	}
	return fmt.Sprintf("ownedBy(%s)", s.OwnerID)
}
