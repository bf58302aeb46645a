// Package session は現在の閲覧者（認証済みユーザー）を解決・キャッシュし、
// 変更を購読者に通知するSession Providerを提供する。
//
// Viewerのライフサイクル:
//
//	未解決 → 解決済み（IdP応答後） → 更新（プロフィール変更） → クリア（サインアウト）
//
// 未認証は model.Anonymous() で表し、エラーとしては扱わない。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/PRAGNESH1006/Smoothies/internal/form"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// AuthBackend はSession Providerが利用する認証バックエンドのインターフェース。
type AuthBackend interface {
	// CurrentUser は現在のユーザーを返す。未ログインの場合はゼロ値のViewerとnilを返す。
	CurrentUser(ctx context.Context) (model.Viewer, error)
	// Update はプロフィールを更新し、更新後のViewerを返す。
	Update(ctx context.Context, update model.ProfileUpdate) (model.Viewer, error)
	// SignOut はログインセッションを終了する。
	SignOut(ctx context.Context) error
}

// Provider はプロセス内で1つのViewerを保持するSession Provider。
type Provider struct {
	backend AuthBackend
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.RWMutex
	viewer   model.Viewer
	resolved bool
	subs     map[int]func(model.Viewer)
	nextSub  int
}

// NewProvider はProviderを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewProvider(backend AuthBackend, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		backend: backend,
		logger:  logger,
		subs:    make(map[int]func(model.Viewer)),
	}
}

// Resolve は現在のViewerを返す。初回のみバックエンドに問い合わせ、以降はキャッシュを返す。
// 同時に呼ばれた初回解決は1回のリモート読み取りにまとめられる。
// エラーを返すことはない。バックエンドの失敗時は未認証を返し、次回の呼び出しで再試行する。
func (p *Provider) Resolve(ctx context.Context) model.Viewer {
	p.mu.RLock()
	if p.resolved {
		v := p.viewer.Clone()
		p.mu.RUnlock()
		return v
	}
	p.mu.RUnlock()

	return p.load(ctx)
}

// Refresh はキャッシュを無視してバックエンドから再取得し、購読者に通知する。
func (p *Provider) Refresh(ctx context.Context) model.Viewer {
	return p.load(ctx)
}

// Current はキャッシュ済みのViewerと解決済みかどうかを返す。リモート呼び出しは行わない。
func (p *Provider) Current() (model.Viewer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewer.Clone(), p.resolved
}

// Subscribe はViewerの変更を受け取るコールバックを登録する。
// 戻り値の関数を呼ぶと登録を解除する。
func (p *Provider) Subscribe(fn func(model.Viewer)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// UpdateProfile はプロフィールを 電話番号 → メールアドレス → パスワード の順に更新する。
//
// 変更がない場合はリモート呼び出しを行わずに検証エラーを返す。
// いずれかの手順が失敗した時点で中断し、それまでに成功した手順はコミットされたまま残る
// （3つの更新をまたぐトランザクションは存在しない）。
// その場合も最後に成功した手順の結果を購読者に通知し、ローカルの状態をバックエンドに合わせる。
// すべて成功した場合は、戻る前に購読者へ同期的に通知する。
func (p *Provider) UpdateProfile(ctx context.Context, changes form.ProfileChanges) (model.Viewer, error) {
	current := p.Resolve(ctx)
	if !current.Authenticated() {
		return model.Viewer{}, model.NewUnauthorizedError()
	}

	changes, err := changes.Normalize()
	if err != nil {
		return model.Viewer{}, err
	}
	steps := changes.Steps(current)
	if len(steps) == 0 {
		return model.Viewer{}, model.NewNoProfileChangesError()
	}

	updated := current
	for i, step := range steps {
		next, err := p.backend.Update(ctx, step)
		if err != nil {
			p.logger.Warn("profile update step failed",
				slog.String("user_id", current.UserID),
				slog.Int("step", i),
				slog.Int("committed_steps", i),
				slog.String("error", err.Error()),
			)
			if i > 0 {
				p.publish(updated)
			}
			return model.Viewer{}, toAuthError(err)
		}
		updated = next
	}

	p.publish(updated)
	p.logger.Info("profile updated",
		slog.String("user_id", updated.UserID),
		slog.Int("steps", len(steps)),
	)
	return updated.Clone(), nil
}

// SetAvatar はプロフィール画像のURLを更新する。
func (p *Provider) SetAvatar(ctx context.Context, avatarURL string) (model.Viewer, error) {
	current := p.Resolve(ctx)
	if !current.Authenticated() {
		return model.Viewer{}, model.NewUnauthorizedError()
	}
	if avatarURL == "" {
		return model.Viewer{}, model.NewUploadNotResolvedError()
	}

	updated, err := p.backend.Update(ctx, model.ProfileUpdate{AvatarURL: &avatarURL})
	if err != nil {
		return model.Viewer{}, toAuthError(err)
	}
	p.publish(updated)
	return updated.Clone(), nil
}

// SignOut はログインセッションを終了し、未認証状態を通知する。
// バックエンドの失敗時はViewerを最後の正常値のまま残す。
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.backend.SignOut(ctx); err != nil {
		return toAuthError(err)
	}
	p.publish(model.Anonymous())
	return nil
}

// load はバックエンドからViewerを取得してキャッシュする。
// 同時に呼ばれた取得は1回にまとめ、最初の呼び出し元がキャンセルしても他の待機者には影響しない。
func (p *Provider) load(ctx context.Context) model.Viewer {
	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := p.group.Do("current", func() (any, error) {
		viewer, err := p.backend.CurrentUser(flightCtx)
		if err != nil {
			p.logger.Warn("failed to resolve current user",
				slog.String("error", err.Error()),
			)
			return model.Anonymous(), nil
		}
		p.publish(viewer)
		return viewer, nil
	})
	return v.(model.Viewer).Clone()
}

// publish はViewerを保存し、全購読者に同期的に通知する。
// コールバックはロック外で呼び出す。
func (p *Provider) publish(v model.Viewer) {
	p.mu.Lock()
	p.viewer = v.Clone()
	p.resolved = true
	subs := make([]func(model.Viewer), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(v.Clone())
	}
}

// toAuthError はバックエンドのエラーをAuthErrorに変換する。
// 既にAPIErrorの場合はそのまま返す。
func toAuthError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewAuthError(err)
}
