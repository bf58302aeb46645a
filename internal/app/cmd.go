package app

import "strings"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期的に削除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandPurgeSessions は期限切れセッションの削除を1回だけ実行することを示す。
	// cronなど外部スケジューラから呼び出す。
	CommandPurgeSessions Command = "purge-sessions"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{
	CommandServe,
	CommandWorker,
	CommandPurgeSessions,
	CommandMigrate,
	CommandHealthcheck,
}

// String はサブコマンド名を返す。
func (c Command) String() string { return string(c) }

// needsDatabase はサブコマンドがDB接続を必要とするかを返す。
func (c Command) needsDatabase() bool {
	return c != CommandHealthcheck
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 先頭の引数のみを見て大文字小文字は区別しない。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, c := range commands {
		if string(c) == name {
			return c
		}
	}
	return CommandServe
}

// Usage はサポートするサブコマンドの一覧を返す。
func Usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "usage: smoothies [" + strings.Join(names, "|") + "]"
}
