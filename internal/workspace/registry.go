package workspace

import (
	"log/slog"
	"sync"
	"time"
)

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	TTL             time.Duration // 最終アクセスからの保持期間
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRegistryConfig はデフォルトの設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		TTL:             30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type entry struct {
	ws         *Workspace
	lastAccess time.Time
}

// Registry はセッションIDごとのWorkspaceを保持する。
// 最終アクセスからTTLを超えたWorkspaceはバックグラウンドで破棄する。
type Registry struct {
	factory *Factory
	config  RegistryConfig
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry は新しいRegistryを生成し、クリーンアップを開始する。
func NewRegistry(factory *Factory, config RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRegistryConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	r := &Registry{
		factory: factory,
		config:  config,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// Get はセッションIDのWorkspaceを取得または作成する。
// セッションIDが空の場合は保持しない使い捨てのWorkspaceを返す。
func (r *Registry) Get(sessionID string) *Workspace {
	if sessionID == "" {
		return r.factory.New("")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		e.lastAccess = r.now()
		return e.ws
	}

	ws := r.factory.New(sessionID)
	r.entries[sessionID] = &entry{ws: ws, lastAccess: r.now()}
	return ws
}

// Drop はセッションIDのWorkspaceを破棄する。ログアウトや退会時に使用する。
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if ok {
		e.ws.Close()
	}
}

// Len は保持しているWorkspaceの数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからTTLを超えたWorkspaceを破棄する。
func (r *Registry) cleanup() {
	now := r.now()

	var expired []*Workspace
	r.mu.Lock()
	for id, e := range r.entries {
		if now.Sub(e.lastAccess) > r.config.TTL {
			expired = append(expired, e.ws)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range expired {
		ws.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug("workspaces evicted", slog.Int("count", len(expired)))
	}
}
