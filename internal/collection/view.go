package collection

import (
	"sort"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// Status はコレクションビューの状態を表す。
type Status string

const (
	StatusIdle     Status = "idle"
	StatusFetching Status = "fetching"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// View はコレクションビューのスナップショット。呼び出し側が自由に変更してよいコピー。
type View struct {
	Records    []model.Record
	SortKey    model.SortKey
	Scope      model.Scope
	Status     Status
	Err        error
	Generation uint64
}

// indexOf はidのレコードの位置を返す。存在しない場合は-1。
func indexOf(records []model.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// removeAt はi番目を取り除いたスライスを返す。
func removeAt(records []model.Record, i int) []model.Record {
	out := make([]model.Record, 0, len(records)-1)
	out = append(out, records[:i]...)
	return append(out, records[i+1:]...)
}

// insertAt はi番目にrを挿入したスライスを返す。
func insertAt(records []model.Record, i int, r model.Record) []model.Record {
	out := make([]model.Record, 0, len(records)+1)
	out = append(out, records[:i]...)
	out = append(out, r)
	return append(out, records[i:]...)
}

// sortedIndex はkeyの降順を保つrの挿入位置を返す。同値のレコードの後ろに置く。
func sortedIndex(records []model.Record, key model.SortKey, r model.Record) int {
	return sort.Search(len(records), func(i int) bool {
		return key.Before(r, records[i])
	})
}

// fitsAt はi番目にrを置いても降順が崩れない場合にtrueを返す。
func fitsAt(records []model.Record, key model.SortKey, i int, r model.Record) bool {
	if i > 0 && key.Before(r, records[i-1]) {
		return false
	}
	if i < len(records) && key.Before(records[i], r) {
		return false
	}
	return true
}

// restorePosition は削除を取り消したレコードの再挿入位置を返す。
// 元の直前のレコード（prevID、先頭だった場合は空）がまだ存在し、その直後に置いても
// 並び順が崩れなければその位置を使う。そうでなければ現在の並び替えキーで二分探索する。
func restorePosition(records []model.Record, key model.SortKey, prevID string, r model.Record) int {
	i := -1
	if prevID == "" {
		i = 0
	} else if p := indexOf(records, prevID); p >= 0 {
		i = p + 1
	}
	if i >= 0 && fitsAt(records, key, i, r) {
		return i
	}
	return sortedIndex(records, key, r)
}

// filter はスコープに一致するレコードのみを返す。
func filter(records []model.Record, scope model.Scope) []model.Record {
	if !scope.IsOwned() {
		return records
	}
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if scope.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
