// Package cleanup は期限切れのログインセッションを定期的に削除するジョブを提供する。
// セッションの検索は期限切れを除外するため、削除はテーブルの肥大化を防ぐためだけに行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = 24 * time.Hour

// ExpiredSessionDeleter は期限切れセッションの一括削除を抽象化する。
// repository.PostgresSessionRepoが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurgeJob は期限切れのセッションを削除するジョブ。
// 何度実行しても結果は変わらない。
type SessionPurgeJob struct {
	sessions ExpiredSessionDeleter
	logger   *slog.Logger
	now      func() time.Time
	// Grace は期限切れから削除までの猶予。ゼロの場合は期限切れ直後から削除対象になる。
	Grace time.Duration
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。
func NewSessionPurgeJob(sessions ExpiredSessionDeleter, logger *slog.Logger) *SessionPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPurgeJob{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は期限切れから猶予を過ぎたセッションを削除し、削除件数を返す。
func (j *SessionPurgeJob) Run(ctx context.Context) (int64, error) {
	start := j.now()
	cutoff := start.Add(-j.Grace)

	deleted, err := j.sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		j.logger.Error("session purge failed",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}

	j.logger.Info("expired sessions purged",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Loop はジョブを即座に1回実行し、以降intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。実行の失敗はログに残して次回に持ち越す。
func (j *SessionPurgeJob) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.logger.Info("session purge loop started", slog.String("interval", interval.String()))
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session purge loop stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
