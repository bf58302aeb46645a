// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はレコードのタイトル・材料・作り方などの利用者入力から
// HTMLマークアップを取り除き、プレーンテキストとして保存できる形にする。
// SSRFGuard はOAuthプロバイダのプロフィール画像を安全に取得するHTTPクライアントを提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
// レコードの保存前に使用される。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去したプレーンテキストを返す。
	// script・styleの中身も含めて除去し、文字参照は元の文字に戻す。
	// 前後の空白は取り除く。空文字列の入力には空文字列を返す。
	Sanitize(input string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// bluemondayのStrictPolicy（全タグ不許可）を使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	stripped := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
