package user

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/upload"
)

// URLValidator は取得前にURLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Uploader はプロフィール画像の保存先となるUpload Pipeline。
type Uploader interface {
	Upload(ctx context.Context, f upload.File, targetPath string) (model.UploadResult, error)
	TargetPath(elem ...string) string
}

// AvatarImporter はOAuthプロバイダーのプロフィール画像を取得し、
// Upload Pipeline経由で avatars/<ユーザーID> に保存する。
type AvatarImporter struct {
	client    *http.Client
	validator URLValidator
	uploader  Uploader
	maxSize   int64
}

// NewAvatarImporter はAvatarImporterを生成する。
// clientにはSSRF防止機能付きのクライアントを渡す。
func NewAvatarImporter(client *http.Client, validator URLValidator, uploader Uploader, maxSize int64) *AvatarImporter {
	return &AvatarImporter{client: client, validator: validator, uploader: uploader, maxSize: maxSize}
}

// Import はsourceURLの画像を取り込み、公開URLを返す。
func (a *AvatarImporter) Import(ctx context.Context, userID, sourceURL string) (string, error) {
	if err := a.validator.ValidateURL(sourceURL); err != nil {
		return "", fmt.Errorf("avatar url rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create avatar request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("avatar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar fetch failed with status %d", resp.StatusCode)
	}

	// 上限+1バイトまで読み、超過はPipelineのサイズ検証に任せる
	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}

	result, err := a.uploader.Upload(ctx, upload.File{
		Name:        path.Base(req.URL.Path),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}, a.uploader.TargetPath("avatars", userID))
	if err != nil {
		return "", err
	}
	return result.PublicURL, nil
}
