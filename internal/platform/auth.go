package platform

import (
	"context"
	"errors"

	"github.com/PRAGNESH1006/Smoothies/internal/auth"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/session"
)

// SessionAuthenticator はログインセッションからユーザーを特定する認証サービス。
type SessionAuthenticator interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// ProfileWriter はプロフィールを更新するユーザーサービス。
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
}

// Auth はブラウザセッションに紐づくsession.AuthBackendの実装。
type Auth struct {
	sessionID string
	auth      SessionAuthenticator
	users     ProfileWriter
}

// NewAuth はAuthを生成する。sessionIDが空の場合は常に未認証になる。
func NewAuth(sessionID string, authenticator SessionAuthenticator, users ProfileWriter) *Auth {
	return &Auth{sessionID: sessionID, auth: authenticator, users: users}
}

// CurrentUser はログインセッションのユーザーを返す。
// セッションがない場合はゼロ値のViewerを返し、エラーにはしない。
func (a *Auth) CurrentUser(ctx context.Context) (model.Viewer, error) {
	user, err := a.auth.GetCurrentUser(ctx, a.sessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return model.Anonymous(), nil
	}
	if err != nil {
		return model.Anonymous(), model.NewAuthError(err)
	}
	return model.ViewerFromUser(user), nil
}

// Update はログイン中のユーザーのプロフィールを更新する。
func (a *Auth) Update(ctx context.Context, update model.ProfileUpdate) (model.Viewer, error) {
	user, err := a.auth.GetCurrentUser(ctx, a.sessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return model.Viewer{}, model.NewUnauthorizedError()
	}
	if err != nil {
		return model.Viewer{}, model.NewAuthError(err)
	}

	updated, err := a.users.UpdateProfile(ctx, user.ID, update)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return model.Viewer{}, err
		}
		return model.Viewer{}, model.NewAuthError(err)
	}
	return model.ViewerFromUser(updated), nil
}

// SignOut はログインセッションを破棄する。セッションがない場合は何もしない。
func (a *Auth) SignOut(ctx context.Context) error {
	if a.sessionID == "" {
		return nil
	}
	if err := a.auth.Logout(ctx, a.sessionID); err != nil {
		return model.NewAuthError(err)
	}
	return nil
}

var _ session.AuthBackend = (*Auth)(nil)
