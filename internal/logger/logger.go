// Package logger はJSON構造化ログの生成と設定を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted は秘匿属性の値を置き換える文字列。
const Redacted = "[REDACTED]"

// sensitiveKeys はログに値を残さない属性キー。
// パスワードログインとOAuthコールバックの値がリクエストログに紛れ込むのを防ぐ。
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"session_id":    {},
	"csrf_token":    {},
}

type options struct {
	level slog.Leveler
}

// Option はSetupの挙動を変更する。
type Option func(*options)

// WithLevel は出力する最低ログレベルを指定する。
// *slog.LevelVarを渡すと、生成後にレベルを切り替えられる。
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		o.level = level
	}
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 既定のレベルはInfoで、秘匿属性の値はRedactedに置き換える。
func Setup(w io.Writer, opts ...Option) *slog.Logger {
	o := options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       o.level,
		ReplaceAttr: redactSensitive,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts ...Option) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, opts...))
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 大文字小文字を区別せず、未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component はcomponent属性を付与した子ロガーを返す。
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}

func redactSensitive(groups []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Redacted)
	}
	return a
}
